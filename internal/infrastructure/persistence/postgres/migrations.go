package postgres

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_programs", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_usage_and_summaries", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_prompt_config", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROGRAMS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS programs (
    key VARCHAR(64) PRIMARY KEY,
    label TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    objectives TEXT NOT NULL DEFAULT '',
    level TEXT NOT NULL DEFAULT '',
    resources JSONB NOT NULL DEFAULT '[]'::jsonb,
    modules JSONB NOT NULL DEFAULT '[]'::jsonb,
    published BOOLEAN NOT NULL DEFAULT FALSE,
    publish_token CHAR(64) UNIQUE,
    published_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- a token exists iff the program is published
    CONSTRAINT publish_token_matches CHECK (
        (published AND publish_token IS NOT NULL AND published_at IS NOT NULL)
        OR (NOT published AND publish_token IS NULL AND published_at IS NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_programs_published ON programs(publish_token) WHERE published;

-- tokens that were rotated out or unpublished; never issued again
CREATE TABLE IF NOT EXISTS revoked_publish_tokens (
    token CHAR(64) PRIMARY KEY,
    program_key VARCHAR(64) NOT NULL,
    revoked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration001Down = `
DROP TABLE IF EXISTS revoked_publish_tokens;
DROP TABLE IF EXISTS programs;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: USAGE AND SUMMARIES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS student_usage (
    id BIGSERIAL PRIMARY KEY,
    email TEXT NOT NULL,
    period CHAR(7) NOT NULL,
    count BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT student_usage_email_period UNIQUE (email, period),
    CONSTRAINT valid_count CHECK (count >= 0)
);

CREATE TABLE IF NOT EXISTS student_summaries (
    email TEXT PRIMARY KEY,
    summary TEXT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration002Down = `
DROP TABLE IF EXISTS student_summaries;
DROP TABLE IF EXISTS student_usage;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: PROMPT TEMPLATES AND APP CONFIG
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS prompt_templates (
    key VARCHAR(64) PRIMARY KEY,
    label TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS app_config (
    key VARCHAR(64) PRIMARY KEY,
    value JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

const migration003Down = `
DROP TABLE IF EXISTS app_config;
DROP TABLE IF EXISTS prompt_templates;
`
