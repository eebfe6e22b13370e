package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestConfigureRejectsBadLevel(t *testing.T) {
	log := Logger()
	if err := log.Configure("loud", "json", "stdout", 0); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestConfigureRejectsBadFormat(t *testing.T) {
	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestJSONOutputCarriesComponentField(t *testing.T) {
	log := Logger()
	if err := log.Configure("info", "json", "stdout", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithComponent("socket_manager").WithFields(Fields{"topic": "orderbook:BTCUSDT"}).Info("subscribed")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if record["component"] != "socket_manager" {
		t.Fatalf("missing component field: %v", record)
	}
	if record["topic"] != "orderbook:BTCUSDT" {
		t.Fatalf("missing topic field: %v", record)
	}
	if record["message"] != "subscribed" {
		t.Fatalf("unexpected message: %v", record)
	}
}
