package sqlinline

const QSelectStorefrontToken = `--sql b0253c97-e56b-451f-8d28-f9f9fd390fdb
select token
from storefront_tokens
where shop_domain = $1::text;
`

const QUpsertStorefrontToken = `--sql fe25de66-72c3-48b3-93fd-64e600dc3258
insert into storefront_tokens (shop_domain, token, created_at, updated_at)
values ($1::text, $2::text, now(), now())
on conflict (shop_domain) do update set
    token = excluded.token,
    updated_at = now();
`
