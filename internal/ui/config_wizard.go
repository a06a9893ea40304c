package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"

	"kpisync/pkg/models"
)

// ErrCancelled is returned when the user aborts the wizard.
var ErrCancelled = errors.New("configuration cancelled")

type (
	askFunc    func(qs []*survey.Question, response interface{}, opts ...survey.AskOpt) error
	askOneFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error
)

type warehouseAnswers struct {
	Kind     string
	Project  string
	Location string
	Dataset  string
}

type snowflakeAnswers struct {
	Account   string
	Username  string
	Password  string
	Warehouse string
	Role      string
	Database  string
	Schema    string
}

type sheetsAnswers struct {
	Spreadsheet     string
	CredentialsFile string
	Share           bool
	Annotate        bool
}

// ConfigWizard provides an interactive configuration setup
type ConfigWizard struct {
	out         io.Writer
	ask         askFunc
	askOne      askOneFunc
	currentStep int
	totalSteps  int
}

// NewConfigWizard creates a wizard that prompts on the terminal and prints
// progress to out.
func NewConfigWizard(out io.Writer) *ConfigWizard {
	return &ConfigWizard{
		out:         out,
		ask:         survey.Ask,
		askOne:      survey.AskOne,
		currentStep: 1,
		totalSteps:  3,
	}
}

// Run asks for every setting, using base for defaults, and returns the new
// config once the user confirms it.
func (w *ConfigWizard) Run(base *models.Config) (*models.Config, error) {
	ShowHeader(w.out, "kpisync - Configuration Setup")

	config := &models.Config{}
	if base != nil {
		*config = *base
	}

	steps := []func(*models.Config) error{
		w.configureWarehouseStep,
		w.configureSheetsStep,
		w.reviewConfiguration,
	}
	for _, step := range steps {
		if err := step(config); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return nil, ErrCancelled
			}
			return nil, err
		}
	}
	return config, nil
}

func (w *ConfigWizard) configureWarehouseStep(config *models.Config) error {
	w.showProgress("Warehouse")

	questions := []*survey.Question{
		{
			Name: "kind",
			Prompt: &survey.Select{
				Message: "Warehouse:",
				Options: []string{"bigquery", "snowflake"},
				Default: defaultString(config.Warehouse.Kind, "bigquery"),
				Help:    "Where the report queries run",
			},
		},
		{
			Name: "project",
			Prompt: &survey.Input{
				Message: "Project ID:",
				Default: config.Warehouse.ProjectID,
				Help:    "Google Cloud project holding the KPI datasets",
			},
			Validate: survey.Required,
		},
		{
			Name: "location",
			Prompt: &survey.Input{
				Message: "Location:",
				Default: defaultString(config.Warehouse.Location, "US"),
				Help:    "BigQuery job location",
			},
		},
		{
			Name: "dataset",
			Prompt: &survey.Input{
				Message: "Data mart dataset:",
				Default: defaultString(config.Warehouse.Dataset, "bank_marketing_dm"),
				Help:    "Dataset containing customer_kpis",
			},
			Validate: survey.Required,
		},
	}

	answers := warehouseAnswers{}
	if err := w.ask(questions, &answers); err != nil {
		return err
	}

	config.Warehouse.Kind = answers.Kind
	config.Warehouse.ProjectID = strings.TrimSpace(answers.Project)
	config.Warehouse.Location = strings.TrimSpace(answers.Location)
	config.Warehouse.Dataset = strings.TrimSpace(answers.Dataset)

	if answers.Kind == "snowflake" {
		if err := w.configureSnowflake(config); err != nil {
			return err
		}
	}

	w.currentStep++
	return nil
}

func (w *ConfigWizard) configureSnowflake(config *models.Config) error {
	sf := config.Warehouse.Snowflake
	questions := []*survey.Question{
		{
			Name:     "account",
			Prompt:   &survey.Input{Message: "Snowflake Account:", Default: sf.Account, Help: "Account identifier (e.g., xy12345.us-east-1)"},
			Validate: survey.Required,
		},
		{
			Name:     "username",
			Prompt:   &survey.Input{Message: "Username:", Default: sf.Username},
			Validate: survey.Required,
		},
		{
			Name:     "password",
			Prompt:   &survey.Password{Message: "Password:"},
			Validate: survey.Required,
		},
		{
			Name:     "warehouse",
			Prompt:   &survey.Input{Message: "Warehouse:", Default: defaultString(sf.Warehouse, "COMPUTE_WH")},
			Validate: survey.Required,
		},
		{
			Name:   "role",
			Prompt: &survey.Input{Message: "Role:", Default: sf.Role},
		},
		{
			Name:   "database",
			Prompt: &survey.Input{Message: "Database:", Default: sf.Database},
		},
		{
			Name:   "schema",
			Prompt: &survey.Input{Message: "Schema:", Default: sf.Schema},
		},
	}

	answers := snowflakeAnswers{}
	if err := w.ask(questions, &answers); err != nil {
		return err
	}

	config.Warehouse.Snowflake = models.Snowflake{
		Account:   answers.Account,
		Username:  answers.Username,
		Password:  answers.Password,
		Warehouse: answers.Warehouse,
		Role:      answers.Role,
		Database:  answers.Database,
		Schema:    answers.Schema,
	}
	return nil
}

func (w *ConfigWizard) configureSheetsStep(config *models.Config) error {
	w.showProgress("Spreadsheet")

	questions := []*survey.Question{
		{
			Name: "spreadsheet",
			Prompt: &survey.Input{
				Message: "Spreadsheet name:",
				Default: defaultString(config.Sheets.Spreadsheet, "Bank Marketing KPIs"),
				Help:    "Created on first export when no spreadsheet has this name",
			},
			Validate: survey.Required,
		},
		{
			Name: "credentialsFile",
			Prompt: &survey.Input{
				Message: "Service account key file:",
				Default: config.Sheets.CredentialsFile,
				Help:    "Leave empty to use the keyring entry or application default credentials",
			},
		},
		{
			Name: "share",
			Prompt: &survey.Confirm{
				Message: "Share new spreadsheets with anyone holding the link?",
				Default: config.Sheets.ShareWithAnyone,
			},
		},
		{
			Name: "annotate",
			Prompt: &survey.Confirm{
				Message: "Add an update timestamp row above each report?",
				Default: config.Sheets.Annotate,
			},
		},
	}

	answers := sheetsAnswers{}
	if err := w.ask(questions, &answers); err != nil {
		return err
	}

	config.Sheets.Spreadsheet = strings.TrimSpace(answers.Spreadsheet)
	config.Sheets.CredentialsFile = strings.TrimSpace(answers.CredentialsFile)
	config.Sheets.ShareWithAnyone = answers.Share
	config.Sheets.Annotate = answers.Annotate

	w.currentStep++
	return nil
}

func (w *ConfigWizard) reviewConfiguration(config *models.Config) error {
	w.showProgress("Review Configuration")

	fmt.Fprintln(w.out, "\n"+ColorInfo("Configuration Summary:"))
	fmt.Fprintln(w.out, strings.Repeat("-", 50))
	PrintKeyValue(w.out, "Warehouse", config.Warehouse.Kind)
	PrintKeyValue(w.out, "Project", config.Warehouse.ProjectID)
	PrintKeyValue(w.out, "Location", config.Warehouse.Location)
	PrintKeyValue(w.out, "Dataset", config.Warehouse.Dataset)
	if config.Warehouse.Kind == "snowflake" {
		PrintKeyValue(w.out, "Snowflake account", config.Warehouse.Snowflake.Account)
		PrintKeyValue(w.out, "Snowflake user", config.Warehouse.Snowflake.Username)
	}
	PrintKeyValue(w.out, "Spreadsheet", config.Sheets.Spreadsheet)
	PrintKeyValue(w.out, "Credentials", defaultString(config.Sheets.CredentialsFile, "(keyring or default)"))
	fmt.Fprintln(w.out, strings.Repeat("-", 50))

	confirm := false
	prompt := &survey.Confirm{
		Message: "Save this configuration?",
		Default: true,
	}
	if err := w.askOne(prompt, &confirm); err != nil {
		return err
	}
	if !confirm {
		return ErrCancelled
	}
	return nil
}

func (w *ConfigWizard) showProgress(step string) {
	fmt.Fprintf(w.out, "\n%s [Step %d/%d] %s\n\n",
		ColorProgress(">"),
		w.currentStep,
		w.totalSteps,
		ColorBold(step),
	)
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
