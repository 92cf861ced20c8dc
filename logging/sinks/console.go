package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"plaza/server/logging"
)

// ConsoleSink renders events one per line for operators tailing the
// process.
type ConsoleSink struct {
	logger   *log.Logger
	useColor bool
}

func NewConsoleSink(w io.Writer, cfg logging.ConsoleConfig) *ConsoleSink {
	return &ConsoleSink{
		logger:   log.New(w, "", log.LstdFlags),
		useColor: cfg.UseColor,
	}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	payload := formatPayload(event.Payload)
	targets := formatTargets(event.Targets)
	room := ""
	if event.Room != "" {
		room = fmt.Sprintf(" room=%s", event.Room)
	}
	severity := formatSeverity(event.Severity)
	if s.useColor {
		if code := severityColor(event.Severity); code != "" {
			severity = code + severity + "\x1b[0m"
		}
	}
	s.logger.Printf("[%s]%s actor=%s severity=%s%s%s", event.Type, room, formatEntity(event.Actor), severity, targets, payload)
	return nil
}

func severityColor(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return "\x1b[2m"
	case logging.SeverityWarn:
		return "\x1b[33m"
	case logging.SeverityError:
		return "\x1b[31m"
	default:
		return ""
	}
}

func (s *ConsoleSink) Close(context.Context) error {
	return nil
}

func formatSeverity(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return "debug"
	case logging.SeverityInfo:
		return "info"
	case logging.SeverityWarn:
		return "warn"
	case logging.SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return fmt.Sprintf(" targets=%s", strings.Join(parts, ","))
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
