package sqlinline

const QInsertExport = `--sql e44d6e41-54b7-456a-8a62-5ddd42fa4b2f
insert into exports (id, order_number, filename, storage_key, bytes, width, height, dpi, quality,
    size, material, shape, label, price, currency, cart_id, status, error_message, created_at, updated_at)
values ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::numeric, $15, nullif($16, ''), $17, nullif($18, ''), now(), now())
returning created_at, updated_at;
`

const QUpdateExportStatus = `--sql b4d8fcd1-4f67-4937-beae-9495860b0219
update exports
set status = $2,
    cart_id = coalesce(nullif($3, ''), cart_id),
    error_message = coalesce(nullif($4, ''), error_message),
    updated_at = now()
where id = $1::uuid;
`

const QSelectExportByID = `--sql 2391d9bf-7f4a-4532-8472-f22034a47d0b
select id::text, order_number, filename, coalesce(storage_key, ''), bytes, width, height, dpi, quality,
    size, material, shape, coalesce(label, ''), price::text, currency, coalesce(cart_id, ''), status,
    coalesce(error_message, ''), created_at, updated_at
from exports
where id = $1::uuid;
`

const QSelectExportsByOrder = `--sql 31515ece-3003-4909-9e27-031873ffa036
select id::text, order_number, filename, coalesce(storage_key, ''), bytes, width, height, dpi, quality,
    size, material, shape, coalesce(label, ''), price::text, currency, coalesce(cart_id, ''), status,
    coalesce(error_message, ''), created_at, updated_at
from exports
where order_number = $1
order by created_at desc
limit 50;
`
