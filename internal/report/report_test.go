package report

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rightsizer/rightsizer/pkg/recommend"
)

func TestAppend_OneLinePerReport(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter(): %v", err)
	}
	defer w.Close()

	key := Key{Customer: "acme", Cloud: "aws", Tenant: "prod", Region: "eu-west-1"}
	for _, id := range []string{"i-1", "i-2"} {
		err := w.Append(key, recommend.Report{
			ResourceID:     id,
			ResourceType:   "INSTANCE",
			GeneralActions: []recommend.Action{recommend.ActionEmpty},
		})
		if err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "acme_aws_prod_eu-west-1.jsonl"))
	if err != nil {
		t.Fatalf("opening output file: %v", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r recommend.Report
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		ids = append(ids, r.ResourceID)
	}
	if len(ids) != 2 || ids[0] != "i-1" || ids[1] != "i-2" {
		t.Errorf("file lines = %v, want [i-1 i-2] in append order", ids)
	}
}

func TestKeyFilename_EmptyPartsDefault(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter(): %v", err)
	}
	defer w.Close()

	if err := w.Append(Key{Cloud: "aws"}, recommend.Report{ResourceID: "i-1"}); err != nil {
		t.Fatalf("Append(): %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "default_aws_default_default.jsonl")); err != nil {
		t.Errorf("expected default-filled filename: %v", err)
	}
}
