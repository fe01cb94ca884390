package db

import "fmt"

// SchemaSQL returns the schema definition for the given embedding dimension.
//
// email is keyed by the composite record id [account, uid], which is what
// makes UpsertEmail idempotent.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- EMAIL TABLE (search index)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS email SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS uid ON email TYPE string;
    DEFINE FIELD IF NOT EXISTS account ON email TYPE string;
    DEFINE FIELD IF NOT EXISTS folder ON email TYPE string DEFAULT "INBOX";
    DEFINE FIELD IF NOT EXISTS ⟨from⟩ ON email TYPE string;
    DEFINE FIELD IF NOT EXISTS ⟨to⟩ ON email TYPE string;
    DEFINE FIELD IF NOT EXISTS subject ON email TYPE string;
    DEFINE FIELD IF NOT EXISTS body ON email TYPE string;
    DEFINE FIELD IF NOT EXISTS date ON email TYPE datetime;
    DEFINE FIELD IF NOT EXISTS category ON email TYPE string DEFAULT "Uncategorized";
    DEFINE FIELD IF NOT EXISTS indexed ON email TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS email_account ON email FIELDS account;
    DEFINE INDEX IF NOT EXISTS email_folder ON email FIELDS folder;
    DEFINE INDEX IF NOT EXISTS email_category ON email FIELDS category;
    DEFINE INDEX IF NOT EXISTS email_date ON email FIELDS date;
    DEFINE ANALYZER IF NOT EXISTS email_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS email_body_ft ON email FIELDS body FULLTEXT ANALYZER email_analyzer BM25;

    -- ==========================================================================
    -- EMAIL_CONTENT TABLE (per-account body embeddings, duplicates allowed)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS email_content SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS account ON email_content TYPE string;
    DEFINE FIELD IF NOT EXISTS uid ON email_content TYPE string;
    DEFINE FIELD IF NOT EXISTS category ON email_content TYPE string;
    DEFINE FIELD IF NOT EXISTS text ON email_content TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON email_content TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON email_content TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS email_content_account ON email_content FIELDS account;
    DEFINE INDEX IF NOT EXISTS email_content_embedding ON email_content FIELDS embedding HNSW DIMENSION %[1]d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- SNIPPET TABLE (curated knowledge base, append-only)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS snippet SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS seq ON snippet TYPE int;
    DEFINE FIELD IF NOT EXISTS text ON snippet TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON snippet TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS created ON snippet TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS snippet_seq ON snippet FIELDS seq UNIQUE;

    -- ==========================================================================
    -- COUNTER TABLE (monotonic id allocation)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS counter SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS value ON counter TYPE int DEFAULT 0;
`, dimension)
}
