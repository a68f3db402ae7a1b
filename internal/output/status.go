package output

import (
	"context"
	"fmt"
	"time"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

func PrettyReplayStatus(delivered, total uint64) string {
	percent := 100
	if total > 0 {
		percent = int(delivered * 100 / total)
	}

	return fmt.Sprintf("\r%-60s %-20s",
		fmt.Sprintf("Samples delivered: [%s] %3d%%", ProgressBar(percent, 40), percent),
		fmt.Sprintf("%d/%d", delivered, total),
	)
}
