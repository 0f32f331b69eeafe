package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/sm64br/runwatch/pkg/logger"
)

// BridgeLogs routes discordgo's internal logging through l. Library debug
// output is only emitted when debug is set.
func BridgeLogs(s *discordgo.Session, l logger.Logger, debug bool) {
	s.LogLevel = discordgo.LogWarning
	if debug {
		s.LogLevel = discordgo.LogDebug
	}
	discordgo.Logger = func(level, _ int, format string, a ...interface{}) {
		logAt(l, level, fmt.Sprintf(format, a...))
	}
}

func logAt(l logger.Logger, level int, msg string) {
	ctx := context.Background()
	switch level {
	case discordgo.LogError:
		l.Error(ctx, msg)
	case discordgo.LogWarning:
		l.Warn(ctx, msg)
	case discordgo.LogInformational:
		l.Info(ctx, msg)
	default:
		l.Debug(ctx, msg)
	}
}
