package config

import "linepreview/internal/domain"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Preview: PreviewConfig{
			BotName:       "bot",
			StylesheetURL: "https://maxcdn.bootstrapcdn.com/bootstrap/3.3.7/css/bootstrap.min.css",
			ScriptURLs: []string{
				"https://use.fontawesome.com/3a3680e4e7.js",
				"https://ajax.googleapis.com/ajax/libs/jquery/3.2.1/jquery.min.js",
				"https://maxcdn.bootstrapcdn.com/bootstrap/3.3.7/js/bootstrap.min.js",
			},
			MapIDStrategy: "counter",
			LanguageIDs:   append([]string(nil), domain.DefaultJSONLanguageIDs...),
		},
		Web: WebConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
		},
		Watch: WatchConfig{
			DebounceMs: 300,
			OutputPath: "~/.linepreview/preview.html",
		},
		Snapshot: SnapshotConfig{
			Width:          420,
			Height:         760,
			TimeoutSeconds: 30,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
