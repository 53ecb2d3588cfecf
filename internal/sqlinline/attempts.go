package sqlinline

// QEnsureTryOnSchema creates the tables used by attempt history and stored
// credentials. It is idempotent and runs at API startup.
const QEnsureTryOnSchema = `--sql 0f3b6c2e-8d41-4b7a-9a65-2c1e7d9f4b30
create table if not exists integration_tokens (
    id uuid primary key,
    provider text not null unique,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create table if not exists tryon_attempts (
    id uuid primary key,
    panel_id text not null,
    job_id text not null default '',
    model_image text not null,
    garment_image text not null,
    category text not null default '',
    phase text not null,
    result_url text not null default '',
    error_message text not null default '',
    started_at timestamptz not null,
    finished_at timestamptz
);
create index if not exists tryon_attempts_panel_idx on tryon_attempts (panel_id, started_at desc);
`

const QUpsertTryOnAttempt = `--sql 5b2d8e71-3f0a-4c6e-b1d9-7e4a2c8f0d15
insert into tryon_attempts (
    id, panel_id, job_id, model_image, garment_image, category,
    phase, result_url, error_message, started_at, finished_at
)
values ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
on conflict (id) do update set
    job_id = excluded.job_id,
    phase = excluded.phase,
    result_url = excluded.result_url,
    error_message = excluded.error_message,
    finished_at = excluded.finished_at;
`

const QListTryOnAttempts = `--sql 9c4e1a07-6b3d-4f28-8e5a-1d7c3b9f2e64
select id::text, panel_id, job_id, model_image, garment_image, category,
       phase, result_url, error_message, started_at, finished_at
from tryon_attempts
where panel_id = $1
order by started_at desc
limit $2;
`
