package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func parseEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONログの解析に失敗: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestSetup_WritesJSONWithAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("フィード取得完了",
		slog.String("source_id", "src-toss"),
		slog.String("url", "https://toss.tech/rss.xml"),
		slog.Int("http_status", 200),
		slog.Int("inserted", 12),
	)

	entry := parseEntry(t, &buf)
	if entry["msg"] != "フィード取得完了" {
		t.Errorf("msg = %q", entry["msg"])
	}
	if entry["source_id"] != "src-toss" || entry["url"] != "https://toss.tech/rss.xml" {
		t.Errorf("属性が不正: %v", entry)
	}
	if entry["http_status"] != float64(200) || entry["inserted"] != float64(12) {
		t.Errorf("数値属性が不正: %v", entry)
	}
	// ログ収集基盤が要求する標準フィールド
	if _, ok := entry["time"]; !ok {
		t.Error("timeフィールドがない")
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %q, want INFO", entry["level"])
	}
}

func TestSetup_LevelField(t *testing.T) {
	var buf bytes.Buffer
	Setup(&buf).Warn("レスポンスサイズが上限に近い")

	if entry := parseEntry(t, &buf); entry["level"] != "WARN" {
		t.Errorf("level = %q, want WARN", entry["level"])
	}
}

func TestSetupDefault_ReplacesGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	SetupDefault(&buf)

	slog.Info("起動", slog.String("mode", "serve"))

	entry := parseEntry(t, &buf)
	if entry["msg"] != "起動" || entry["mode"] != "serve" {
		t.Errorf("グローバルロガーの出力が不正: %v", entry)
	}
}
