package obs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLogRequestLevels(t *testing.T) {
	log := Logger()
	original := log.Out
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	cases := []struct {
		status int
		level  string
	}{
		{200, "info"},
		{404, "warning"},
		{503, "error"},
	}
	for _, tc := range cases {
		buf.Reset()
		LogRequest(logrus.Fields{"status": tc.status, "path": "/tasks"})
		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("log not valid JSON: %v", err)
		}
		if entry["level"] != tc.level {
			t.Fatalf("status %d: expected level %s, got %v", tc.status, tc.level, entry["level"])
		}
		if entry["path"] != "/tasks" {
			t.Fatalf("missing path field: %v", entry)
		}
		if _, ok := entry["ts"]; !ok {
			t.Fatalf("missing ts field: %v", entry)
		}
	}
}
