package config

const (
	defaultDataDir          = "~/Documents/ecmc-data/production-summaries"
	defaultLogRetentionDays = 60
	defaultNotifyTimeout    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultBaseURL          = "https://ecmc.state.co.us/documents/data/downloads/production/"
	defaultFilenameTemplate = "co YYYY Annual Production Summary-xp"
	defaultFetchTimeout     = 300
	defaultUserAgent        = "prodsum/dev"
	defaultAccessDriver     = "x64"
	defaultExportFormat     = "csv"
	defaultHashAlgorithm    = "sha256"

	// YearPlaceholder is substituted with the four digit report year.
	YearPlaceholder = "YYYY"

	// FirstReportYear is the earliest year ECMC publishes summaries for.
	FirstReportYear = 1999
)

// DefaultYears mirrors the report years fetched when none are configured.
func DefaultYears() []int {
	return []int{2020, 2021, 2022, 2023}
}

// DefaultYearOverrides are the years whose archive names use an upper-case suffix.
func DefaultYearOverrides() map[string]string {
	return map[string]string{
		"1999": "co YYYY Annual Production Summary-XP",
		"2000": "co YYYY Annual Production Summary-XP",
	}
}

// DefaultProductionColumns is the production keep list.
func DefaultProductionColumns() []string {
	return []string{
		"name",
		"operator_num",
		"API_num",
		"Prod_days",
		"gas_btu_sales",
		"gas_sales",
		"gas_shrinkage",
		"gas_used_on_lease",
		"flared_vented",
		"oil_adjustment",
		"oil_gravity",
		"oil_sales",
		"gas_prod",
		"oil_prod",
		"water_prod",
	}
}

// DefaultProductionFillColumns is the production keep list minus the descriptive
// columns and Prod_days.
func DefaultProductionFillColumns() []string {
	return []string{
		"gas_btu_sales",
		"gas_sales",
		"gas_shrinkage",
		"gas_used_on_lease",
		"flared_vented",
		"oil_adjustment",
		"oil_gravity",
		"oil_sales",
		"gas_prod",
		"oil_prod",
		"water_prod",
	}
}

// DefaultCompletionsColumns is the completions keep list.
func DefaultCompletionsColumns() []string {
	return []string{
		"facility_name",
		"facility_num",
		"well_name",
		"API_num",
		"well_bore_status",
		"county",
		"lat",
		"long",
		"first_prod_date",
		"gas_type",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
		},
		Fetch: Fetch{
			BaseURL:          defaultBaseURL,
			FilenameTemplate: defaultFilenameTemplate,
			YearOverrides:    DefaultYearOverrides(),
			TimeoutSeconds:   defaultFetchTimeout,
			UserAgent:        defaultUserAgent,
		},
		Convert: Convert{
			AccessDriver: defaultAccessDriver,
		},
		Transform: Transform{
			RemoveCO2Wells:             true,
			ProductionColumnsToKeep:    DefaultProductionColumns(),
			ProductionColumnsFillZero:  DefaultProductionFillColumns(),
			CompletionsColumnsToKeep:   DefaultCompletionsColumns(),
			CompletionsColumnsFillZero: []string{"gas_type"},
		},
		Export: Export{
			Format: defaultExportFormat,
		},
		Pipeline: Pipeline{
			Years:         DefaultYears(),
			HashAlgorithm: defaultHashAlgorithm,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
	}
}
