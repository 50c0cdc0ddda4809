package report_test

import (
	"strings"
	"testing"

	"github.com/vbwagner/client-code/internal/report"
)

func samplePayload() *report.Payload {
	return &report.Payload{
		SchemaVersion:       report.SchemaVersion,
		RunID:               "0c9c9f2e-4a62-4b0e-9d51-57c5b6f2a001",
		Animal:              "capuchin",
		Branch:              "master",
		Stage:               "build",
		Status:              2,
		Timestamp:           1756600000,
		Log:                 "gcc: fatal error",
		ChangedThisRun:      "src/a.c!src/b.c",
		ChangedSinceSuccess: "src/a.c!src/b.c!src/c.c",
		CompletedSteps:      []string{"checkout", "copy-source", "configure"},
		ConfigSummary:       map[string]string{"os": "linux"},
	}
}

func TestSignVerify(t *testing.T) {
	p := samplePayload()
	if err := p.Sign("s3cret"); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if p.Signature == "" {
		t.Fatal("Sign left signature empty")
	}

	ok, err := p.VerifySignature("s3cret")
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Error("signature must verify under the signing secret")
	}

	ok, err = p.VerifySignature("wrong")
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Error("signature must not verify under a different secret")
	}
}

func TestVerifySignature_DetectsTampering(t *testing.T) {
	p := samplePayload()
	if err := p.Sign("s3cret"); err != nil {
		t.Fatal(err)
	}
	p.Status = 0

	ok, err := p.VerifySignature("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("signature must not verify after the payload was modified")
	}
}

func TestMarshalUnmarshal_RoundTrip(t *testing.T) {
	p := samplePayload()
	if err := p.Sign("s3cret"); err != nil {
		t.Fatal(err)
	}
	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := report.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.RunID != p.RunID || got.Stage != p.Stage || got.Status != p.Status {
		t.Errorf("round trip lost fields: got %+v", got)
	}
	ok, err := got.VerifySignature("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("signature must survive the round trip")
	}
}

func TestUnmarshal_RejectsUnknownSchemaVersion(t *testing.T) {
	p := samplePayload()
	p.SchemaVersion = report.SchemaVersion + 1
	data, err := p.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := report.Unmarshal(data); err == nil {
		t.Fatal("expected rejection of unknown schema version")
	} else if !strings.Contains(err.Error(), "schema version") {
		t.Errorf("error = %v, want schema version rejection", err)
	}
}

func TestJoinFiles(t *testing.T) {
	if got := report.JoinFiles(nil); got != "" {
		t.Errorf("JoinFiles(nil) = %q, want empty", got)
	}
	if got := report.JoinFiles([]string{"a"}); got != "a" {
		t.Errorf("JoinFiles([a]) = %q, want a", got)
	}
	if got := report.JoinFiles([]string{"a", "b c", "d"}); got != "a!b c!d" {
		t.Errorf("JoinFiles = %q, want a!b c!d", got)
	}
}
