package sqlinline

const QInsertDonation = `--sql 3b47a1b9-a9bc-4be1-9f72-c4a487dfe31d
insert into donations(id, request_id, donor_id, status, timeline_logs, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::jsonb, now(), now())
returning created_at, updated_at;
`

const QGetDonation = `--sql 099c503b-96d1-4723-b63a-10bb714b9876
select id, request_id, donor_id, status, cancellation_reason, timeline_logs, created_at, updated_at
from donations
where id = $1::text;
`

const QListDonationsByRequest = `--sql 9689d4ea-09b1-4a9c-9fc5-77d02072f704
select id, request_id, donor_id, status, cancellation_reason, timeline_logs, created_at, updated_at
from donations
where request_id = $1::text
order by created_at desc;
`

const QListDonationsByDonor = `--sql 19b91b64-5469-4d7a-9353-436a32c7289f
select id, request_id, donor_id, status, cancellation_reason, timeline_logs, created_at, updated_at
from donations
where donor_id = $1::text
  and (cardinality($2::text[]) = 0 or status = any($2::text[]))
order by created_at desc;
`

const QCountActiveDonations = `--sql 267f6827-a040-46ee-ad6f-169ecd7ed8d0
select count(*)
from donations
where request_id = $1::text
  and status <> 'CANCELLED';
`

const QCountDonationsByStatus = `--sql fa09ad42-766d-4ec2-a119-f2ccc3dad8d0
select count(*)
from donations
where request_id = $1::text
  and status = $2::text;
`

const QCountActiveDonationsForDonor = `--sql 4e9a93d4-0924-46e6-bc3c-661275be5c0b
select count(*)
from donations
where request_id = $1::text
  and donor_id = $2::text
  and status <> 'CANCELLED';
`

const QTransitionDonation = `--sql 9f05635e-643b-4892-8c2c-965bbe69ff4b
update donations
set status = $3::text,
    timeline_logs = timeline_logs || $4::jsonb,
    cancellation_reason = coalesce($5::text, cancellation_reason),
    updated_at = now()
where id = $1::text
  and status = $2::text;
`
