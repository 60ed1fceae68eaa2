package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":4000" || cfg.GRPCAddr != ":8080" {
		t.Errorf("addrs = %q/%q, want :4000/:8080", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.JWTIssuer != "fleet-auth" || cfg.JWTAudience != "fleet-api" {
		t.Errorf("issuer/audience = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.PositionKafkaTopic != "fleet-positions" || cfg.KafkaGroupID != "fleet-position-worker" {
		t.Errorf("kafka = %q/%q", cfg.PositionKafkaTopic, cfg.KafkaGroupID)
	}
	if cfg.OTELServiceName != "fleet-tracker" {
		t.Errorf("OTELServiceName = %q", cfg.OTELServiceName)
	}
	if cfg.SessionSendBuffer != 64 {
		t.Errorf("SessionSendBuffer = %d, want 64", cfg.SessionSendBuffer)
	}
	if cfg.LogMaxSizeMB != 100 || cfg.LogMaxBackups != 5 {
		t.Errorf("log rotation = %d/%d", cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	}
	if cfg.AccessTTL() != 15*time.Minute || cfg.RegistryRefresh() != 30*time.Second ||
		cfg.PingInterval() != 30*time.Second || cfg.WriteTimeout() != 10*time.Second ||
		cfg.HealthInterval() != 10*time.Second {
		t.Error("duration defaults wrong")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9000")
	os.Setenv("JWT_ISSUER", "custom-issuer")
	os.Setenv("BCRYPT_COST", "14")
	os.Setenv("SESSION_SEND_BUFFER", "8")
	os.Setenv("REGISTRY_REFRESH_INTERVAL", "5s")
	os.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" || cfg.JWTIssuer != "custom-issuer" || cfg.BcryptCost != 14 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SessionSendBuffer != 8 {
		t.Errorf("SessionSendBuffer = %d, want 8", cfg.SessionSendBuffer)
	}
	if cfg.RegistryRefresh() != 5*time.Second {
		t.Errorf("RegistryRefresh = %v, want 5s", cfg.RegistryRefresh())
	}
	if !cfg.OTELInsecure {
		t.Error("OTELInsecure = false, want true")
	}
}

func TestLoad_InvalidBcryptCost(t *testing.T) {
	for _, cost := range []string{"3", "32"} {
		os.Clearenv()
		os.Setenv("BCRYPT_COST", cost)
		if _, err := Load(); err == nil {
			t.Errorf("BCRYPT_COST=%s: expected error", cost)
		}
	}
}

func TestLoad_InvalidSendBuffer(t *testing.T) {
	os.Clearenv()
	os.Setenv("SESSION_SEND_BUFFER", "0")
	if _, err := Load(); err == nil {
		t.Error("SESSION_SEND_BUFFER=0: expected error")
	}
}

func TestDurations_FallBackOnInvalid(t *testing.T) {
	cfg := &Config{
		JWTAccessTTL:            "invalid",
		RegistryRefreshInterval: "-1s",
		WSPingInterval:          "",
		WSWriteTimeout:          "abc",
		HealthCheckInterval:     "0",
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.RegistryRefresh() != 30*time.Second {
		t.Errorf("RegistryRefresh = %v", cfg.RegistryRefresh())
	}
	if cfg.PingInterval() != 30*time.Second || cfg.WriteTimeout() != 10*time.Second || cfg.HealthInterval() != 10*time.Second {
		t.Error("websocket/health fallbacks wrong")
	}
}

func TestKafkaBrokersList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"localhost:9092", []string{"localhost:9092"}},
		{" a:9092 , b:9092,,", []string{"a:9092", "b:9092"}},
	}
	for _, tt := range tests {
		cfg := &Config{KafkaBrokers: tt.in}
		got := cfg.KafkaBrokersList()
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("KafkaBrokersList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil")
	}
}
