package models

type Config struct {
	Warehouse  Warehouse         `yaml:"warehouse"`
	Sheets     Sheets            `yaml:"sheets"`
	Ingest     Ingest            `yaml:"ingest"`
	Audit      Audit             `yaml:"audit"`
	Runner     Runner            `yaml:"runner"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
	Reports    []Report          `yaml:"reports,omitempty"`
	// CatalogFile points at a .sql catalog with "-- Title" headers.
	CatalogFile string `yaml:"catalog_file,omitempty"`
}

// Warehouse selects and configures the tabular data source.
type Warehouse struct {
	Kind      string    `yaml:"kind"`     // "bigquery" (default) or "snowflake"
	ProjectID string    `yaml:"project"`  // GCP project holding the datasets
	Location  string    `yaml:"location"` // BigQuery job location, e.g. "US"
	Dataset   string    `yaml:"dataset"`  // Data mart dataset with customer_kpis
	Timeout   string    `yaml:"timeout"`  // Per-query timeout, e.g. "2m"
	Snowflake Snowflake `yaml:"snowflake"`
}

type Snowflake struct {
	Account   string `yaml:"account"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Role      string `yaml:"role"`
	Warehouse string `yaml:"warehouse"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
}

// Sheets configures the spreadsheet destination.
type Sheets struct {
	Spreadsheet     string `yaml:"spreadsheet"`
	CredentialsFile string `yaml:"credentials_file"`
	// KeyringEntry names a service account key stored with 'kpisync credentials set'.
	KeyringEntry    string `yaml:"keyring_entry"`
	ShareWithAnyone bool   `yaml:"share_with_anyone"`
	Annotate        bool   `yaml:"annotate"`
}

type Ingest struct {
	URL     string `yaml:"url"`
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`
	Timeout string `yaml:"timeout"`
}

type Audit struct {
	Dataset string `yaml:"dataset"`
	Table   string `yaml:"table"`
}

type Runner struct {
	Parallelism int `yaml:"parallelism"`
}

// Report is one catalog entry: a sheet name and its query template.
type Report struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}
