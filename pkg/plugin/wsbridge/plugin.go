package wsbridge

import (
	"fmt"
	"os"

	"github.com/chriscow/sous-voice/pkg/plugin"
)

func newBridgeSTT(cfg map[string]any) (any, error) {
	url := plugin.String(cfg, "url", os.Getenv("SOUS_TRANSCRIPT_URL"))
	if url == "" {
		return nil, fmt.Errorf("transcript bridge URL is required (set SOUS_TRANSCRIPT_URL or provide url in config)")
	}
	return New(Config{URL: url, Token: plugin.String(cfg, "token", "")})
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSTT,
		Name:        "wsbridge",
		Factory:     newBridgeSTT,
		Description: "Transcripts streamed from a websocket recognition bridge",
		Version:     "1.0.0",
		Config: map[string]any{
			"url":   "ws:// or wss:// bridge URL (or set SOUS_TRANSCRIPT_URL)",
			"token": "bearer token sent on connect",
		},
	})
}
