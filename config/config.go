/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_CARRIER_BASE_URL   = "https://api.bisturi.com.br"
	DEFAULT_TRACKING_URL_BASE  = "https://rastreamento.bisturi.com.br/"
	DEFAULT_CONCURRENCY        = 4
	DEFAULT_REQUEST_DELAY_MS   = 200
	DEFAULT_SUCCESS_FILE       = "success_update_tracking.csv"
	DEFAULT_ERROR_FILE         = "error_update_tracking.csv"
	DEFAULT_HISTORY_DNS        = "tracksync.db"
	DEFAULT_HISTORY_LIMIT      = 50
	DEFAULT_CARRIER_TIMEOUT    = 60
	DEFAULT_CARRIER_RETRIES    = 2
	DEFAULT_COMMERCE_TIMEOUT   = 30
	DEFAULT_COMMERCE_RETRIES   = 3
	DEFAULT_TRACING_SERVICE_ID = "tracksync"
)

type CarrierConfig struct {
	BaseURL         string `json:"base_url" envconfig:"BISTURI_BASE"`
	TrackingURLBase string `json:"tracking_url_base" envconfig:"BISTURI_TRACKING_URL"`
	TimeoutSec      int    `json:"timeout_sec" envconfig:"BISTURI_TIMEOUT_SEC"`
	MaxRetries      *int   `json:"max_retries" envconfig:"BISTURI_MAX_RETRIES"`
}

type CommerceConfig struct {
	AccountName string `json:"account_name" envconfig:"VTEX_ACCOUNT_NAME"`
	Environment string `json:"environment" envconfig:"VTEX_ENVIRONMENT"`
	AppKey      string `json:"app_key" envconfig:"VTEX_APP_KEY"`
	AppToken    string `json:"app_token" envconfig:"VTEX_APP_TOKEN"`
	// BaseURL overrides the https://{account}.{environment} derivation.
	BaseURL           string   `json:"base_url" envconfig:"VTEX_BASE_URL"`
	TimeoutSec        int      `json:"timeout_sec" envconfig:"VTEX_TIMEOUT_SEC"`
	MaxRetries        *int     `json:"max_retries" envconfig:"VTEX_MAX_RETRIES"`
	RequestsPerSecond *float64 `json:"requests_per_second" envconfig:"VTEX_RATE_LIMIT_RPS"`
}

type RunConfig struct {
	Concurrency    int    `json:"concurrency" envconfig:"CONCURRENCY"`
	RequestDelayMs *int   `json:"request_delay_ms" envconfig:"REQUEST_DELAY_MS"`
	OutputDir      string `json:"output_dir" envconfig:"TRACKSYNC_OUTPUT_DIR"`
	SuccessFile    string `json:"success_file"`
	ErrorFile      string `json:"error_file"`
	Timezone       string `json:"timezone" envconfig:"TRACKSYNC_TIMEZONE"`
}

type HistoryConfig struct {
	Dns   string `json:"dns" envconfig:"TRACKSYNC_HISTORY_DNS"`
	Limit int    `json:"limit" envconfig:"TRACKSYNC_HISTORY_LIMIT"`
}

type ArchiveConfig struct {
	S3BucketName       string `json:"s3_bucket_name" envconfig:"TRACKSYNC_S3_BUCKET"`
	S3Region           string `json:"s3_region" envconfig:"TRACKSYNC_S3_REGION"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"TRACKSYNC_S3_ENDPOINT"`
	S3Prefix           string `json:"s3_prefix" envconfig:"TRACKSYNC_S3_PREFIX"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"AWS_SECRET_ACCESS_KEY"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"TRACKSYNC_SLACK_WEBHOOK"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type TracingConfig struct {
	Endpoint    string `json:"endpoint" envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `json:"service_name" envconfig:"OTEL_SERVICE_NAME"`
}

// Configuration is built once at startup and handed to every component that needs it.
type Configuration struct {
	Carrier      CarrierConfig  `json:"carrier"`
	Commerce     CommerceConfig `json:"commerce"`
	Run          RunConfig      `json:"run"`
	History      HistoryConfig  `json:"history"`
	Archive      ArchiveConfig  `json:"archive"`
	Notification Notification   `json:"notification"`
	Tracing      TracingConfig  `json:"tracing"`
}

func loadConfigFromFile(file string) (*Configuration, error) {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return nil, err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		logrus.Debugf("config file %s not found, will use env variables", file)
	}

	// override config from environment variables
	err = envconfig.Process("tracksync", &cnf)
	if err != nil {
		return nil, err
	}

	cnf.validateAndAddDefaults()
	return &cnf, nil
}

// Load reads the JSON configuration file (optional) and applies environment overrides.
func Load(configFile string) (*Configuration, error) {
	return loadConfigFromFile(configFile)
}

func (cnf *Configuration) validateAndAddDefaults() {
	cnf.Carrier.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Carrier.BaseURL), "/")
	if cnf.Carrier.BaseURL == "" {
		cnf.Carrier.BaseURL = DEFAULT_CARRIER_BASE_URL
	}
	if strings.TrimSpace(cnf.Carrier.TrackingURLBase) == "" {
		cnf.Carrier.TrackingURLBase = DEFAULT_TRACKING_URL_BASE
	}
	if cnf.Carrier.TimeoutSec <= 0 {
		cnf.Carrier.TimeoutSec = DEFAULT_CARRIER_TIMEOUT
	}
	if cnf.Carrier.MaxRetries == nil {
		retries := DEFAULT_CARRIER_RETRIES
		cnf.Carrier.MaxRetries = &retries
	}

	cnf.Commerce.AccountName = strings.TrimSpace(cnf.Commerce.AccountName)
	cnf.Commerce.Environment = strings.Trim(strings.TrimSpace(cnf.Commerce.Environment), "/")
	cnf.Commerce.AppKey = strings.TrimSpace(cnf.Commerce.AppKey)
	cnf.Commerce.AppToken = strings.TrimSpace(cnf.Commerce.AppToken)
	cnf.Commerce.BaseURL = strings.TrimRight(strings.TrimSpace(cnf.Commerce.BaseURL), "/")
	if cnf.Commerce.TimeoutSec <= 0 {
		cnf.Commerce.TimeoutSec = DEFAULT_COMMERCE_TIMEOUT
	}
	if cnf.Commerce.MaxRetries == nil {
		retries := DEFAULT_COMMERCE_RETRIES
		cnf.Commerce.MaxRetries = &retries
	}

	if cnf.Run.Concurrency <= 0 {
		cnf.Run.Concurrency = DEFAULT_CONCURRENCY
	}
	if cnf.Run.RequestDelayMs == nil {
		delay := DEFAULT_REQUEST_DELAY_MS
		cnf.Run.RequestDelayMs = &delay
	}
	if cnf.Run.SuccessFile == "" {
		cnf.Run.SuccessFile = DEFAULT_SUCCESS_FILE
	}
	if cnf.Run.ErrorFile == "" {
		cnf.Run.ErrorFile = DEFAULT_ERROR_FILE
	}

	if cnf.History.Dns == "" {
		cnf.History.Dns = DEFAULT_HISTORY_DNS
	}
	if cnf.History.Limit <= 0 {
		cnf.History.Limit = DEFAULT_HISTORY_LIMIT
	}

	if cnf.Tracing.ServiceName == "" {
		cnf.Tracing.ServiceName = DEFAULT_TRACING_SERVICE_ID
	}
}

// Validate checks the settings a reconciliation run cannot do without.
func (cnf *Configuration) Validate() error {
	c := &cnf.Commerce
	err := validation.ValidateStruct(c,
		validation.Field(&c.AccountName, validation.Required.When(c.BaseURL == "").Error("VTEX_ACCOUNT_NAME is required")),
		validation.Field(&c.Environment, validation.Required.When(c.BaseURL == "").Error("VTEX_ENVIRONMENT is required")),
		validation.Field(&c.AppKey, validation.Required.Error("VTEX_APP_KEY is required")),
		validation.Field(&c.AppToken, validation.Required.Error("VTEX_APP_TOKEN is required")),
	)
	if err != nil {
		return fmt.Errorf("invalid commerce configuration: %w", err)
	}

	r := &cnf.Run
	return validation.ValidateStruct(r,
		validation.Field(&r.Concurrency, validation.Min(1)),
		validation.Field(&r.RequestDelayMs, validation.Min(0)),
		validation.Field(&r.Timezone, validation.By(func(value interface{}) error {
			_, err := time.LoadLocation(value.(string))
			return err
		})),
	)
}

// Delay is the stagger between order starts. Zero disables it.
func (r RunConfig) Delay() time.Duration {
	if r.RequestDelayMs == nil {
		return 0
	}
	return time.Duration(*r.RequestDelayMs) * time.Millisecond
}

// CommerceBaseURL is https://{account}.{environment} unless overridden.
func (cnf *Configuration) CommerceBaseURL() string {
	if cnf.Commerce.BaseURL != "" {
		return cnf.Commerce.BaseURL
	}
	return strings.TrimRight(fmt.Sprintf("https://%s.%s", cnf.Commerce.AccountName, cnf.Commerce.Environment), "/")
}

// Location is the timezone used to format delivered dates. Empty means local time.
func (cnf *Configuration) Location() *time.Location {
	if cnf.Run.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(cnf.Run.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Redacted returns a copy that is safe to print.
func (cnf Configuration) Redacted() Configuration {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	cnf.Commerce.AppKey = mask(cnf.Commerce.AppKey)
	cnf.Commerce.AppToken = mask(cnf.Commerce.AppToken)
	cnf.Archive.AwsAccessKeyId = mask(cnf.Archive.AwsAccessKeyId)
	cnf.Archive.AwsSecretAccessKey = mask(cnf.Archive.AwsSecretAccessKey)
	cnf.Notification.Slack.WebhookUrl = mask(cnf.Notification.Slack.WebhookUrl)
	return cnf
}
