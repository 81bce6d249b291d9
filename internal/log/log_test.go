package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	lgr := New(&buf)
	if err := lgr.Warn("test: %d", 99); err != nil {
		t.Fatal(err)
	}
	if err := lgr.Debug("test: %d", 99); err != nil {
		t.Fatal(err)
	}
	if err := lgr.SetLevel(OFF); err != nil {
		t.Fatal(err)
	}
	if err := lgr.Critical("testing off: %d", 88); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if !strings.Contains(s, "WARN test: 99\n") {
		t.Fatalf("missing warn line: %q", s)
	}
	if strings.Contains(s, "DEBUG") {
		t.Fatalf("debug should have been filtered at INFO level: %q", s)
	}
	if strings.Contains(s, "testing off") {
		t.Fatalf("nothing should log once level is OFF: %q", s)
	}
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	lgr := New(&a)
	if err := lgr.AddWriter(&b); err != nil {
		t.Fatal(err)
	}
	if err := lgr.Error("0x%x", 0x1337); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a.String(), "ERROR 0x1337\n") || !strings.Contains(b.String(), "ERROR 0x1337\n") {
		t.Fatalf("both writers should have received the line: a=%q b=%q", a.String(), b.String())
	}
	if err := lgr.DeleteWriter(&b); err != nil {
		t.Fatal(err)
	}
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	lgr := New(&buf)
	if err := lgr.InfoF("thread started", KV("tid", 7), KVErr(nil)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "tid=7") {
		t.Fatalf("expected structured field in output: %q", buf.String())
	}
}
