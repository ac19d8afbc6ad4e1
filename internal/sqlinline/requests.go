package sqlinline

const QInsertRequest = `--sql ca19ceaf-27b6-40b6-88b6-3782b1344a57
insert into requests(id, requester_id, blood_type, component_type, units_needed, urgency, hospital_name, location, note, status, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::int, $6::text, $7::text, $8::text, nullif($9::text, ''), $10::text, now(), now())
returning created_at, updated_at;
`

const QGetRequest = `--sql bf452f15-92d6-4135-9ac0-cd932bfc8fa6
select id, requester_id, blood_type, component_type, units_needed, urgency, hospital_name, location, note, status, created_at, updated_at
from requests
where id = $1::text;
`

const QListOpenRequests = `--sql 81fa1bf2-9736-4560-8992-924b3ff6af34
select r.id, r.requester_id, r.blood_type, r.component_type, r.units_needed, r.urgency, r.hospital_name, r.location, r.note, r.status, r.created_at, r.updated_at,
       count(d.id) filter (where d.status <> 'CANCELLED') as active_responses
from requests r
left join donations d on d.request_id = r.id
where r.status = 'PENDING'
  and r.requester_id <> $1::text
group by r.id
order by r.created_at desc;
`

const QListRequestsByRequester = `--sql 6909d46f-fee9-47f1-8051-537ee9a05aed
select r.id, r.requester_id, r.blood_type, r.component_type, r.units_needed, r.urgency, r.hospital_name, r.location, r.note, r.status, r.created_at, r.updated_at,
       count(d.id) filter (where d.status <> 'CANCELLED') as active_responses
from requests r
left join donations d on d.request_id = r.id
where r.requester_id = $1::text
  and (cardinality($2::text[]) = 0 or r.status = any($2::text[]))
group by r.id
order by r.created_at desc;
`

const QUpdateRequestStatus = `--sql 0bbe635b-0b54-4f78-aa75-b629fbb2958b
update requests
set status = $3::text,
    updated_at = now()
where id = $1::text
  and status = any($2::text[]);
`

const QListReconcilableRequests = `--sql 5f910ac0-66f0-4026-ad8a-bacc1242e650
select r.id
from requests r
where r.status in ('PENDING', 'ACCEPTED')
  and r.units_needed <= (
      select count(*) from donations d
      where d.request_id = r.id and d.status = 'DONATED'
  )
order by r.updated_at asc
limit $1::int;
`

const QLockRequestForAccept = `--sql 5180b6f4-0226-416b-9571-4186a835a025
select status, units_needed
from requests
where id = $1::text
for update;
`
