package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# indexfeed-trader configuration

[feed]
endpoint = "wss://feed.example.invalid/v2"
token = ""
clientId = ""
keepaliveIntervalSec = 30

[[feed.subscriptionSet]]
segment = "IDX_I"
securityId = "13"

[feed.reconnect]
initialDelayMs = 5000
maxAttempts = 5

[candle]
intervals = ["1m", "5m"]

[risk]
totalCapital = 20000.0
maxDailyLossPct = 0.03
riskPct = 0.01
stopLossPct = 0.01
targetPct = 0.03
lotSize = 75

[schedule]
marketOpen = "09:15"
marketClose = "15:30"
eodSquareOff = "15:20"
dailyResetAt = "09:00"
timezone = "+05:30"

[http]
listenAddr = ":8765"

[store]
dbPath = "trader.db"

[logging]
level = "info"
file = "logs/trader.log"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
