package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crytic/multifork/logging/colors"
	"github.com/rs/zerolog"
)

// GlobalLogger describes a Logger that is disabled by default and is configured by the CLI. Each package should create
// its own sub-logger from it so that log lines can be filtered by module.
var GlobalLogger = NewLogger(zerolog.Disabled, false)

// Logger describes a custom logging object that can log events to any arbitrary channel and can handle specialized
// output to console as well
type Logger struct {
	// level describes the log level
	level zerolog.Level

	// multiLogger outputs to every registered writer, in structured or unstructured format.
	multiLogger zerolog.Logger

	// consoleLogger outputs colorized, unstructured lines to stderr.
	consoleLogger zerolog.Logger

	// context holds the key-value pairs attached by NewSubLogger so that writers added later still carry them.
	context []string

	// writers describes a list of io.Writer objects where log output will go.
	writers []io.Writer
}

// LogFormat describes what format to log in
type LogFormat string

const (
	// STRUCTURED describes that logging should be done in structured JSON format
	STRUCTURED LogFormat = "structured"
	// UNSTRUCTURED describes that logging should be done in an unstructured format
	UNSTRUCTURED LogFormat = "unstructured"
)

// StructuredLogInfo describes a key-value mapping that can be used to log structured data
type StructuredLogInfo map[string]any

// NewLogger will create a new Logger object with a specific log level. The Logger can output to console, if enabled,
// and output logs to any number of arbitrary io.Writer channels
func NewLogger(level zerolog.Level, consoleEnabled bool, writers ...io.Writer) *Logger {
	l := &Logger{
		level:         level,
		consoleLogger: zerolog.New(os.Stderr).Level(zerolog.Disabled),
		writers:       writers,
	}
	if consoleEnabled {
		consoleWriter := setupDefaultFormatting(zerolog.ConsoleWriter{Out: os.Stderr}, level)
		l.consoleLogger = zerolog.New(consoleWriter).Level(level)
	}
	l.rebuildMultiLogger()
	return l
}

// NewSubLogger will create a new Logger with unique context in the form of a key-value pair. Each package uses one so
// that its log lines can be grepped by key.
func (l *Logger) NewSubLogger(key string, value string) *Logger {
	sub := &Logger{
		level:         l.level,
		consoleLogger: l.consoleLogger.With().Str(key, value).Logger(),
		context:       append(append([]string{}, l.context...), key, value),
		writers:       append([]io.Writer{}, l.writers...),
	}
	sub.rebuildMultiLogger()
	return sub
}

// AddWriter will add a writer to the list of channels where log output will be sent.
func (l *Logger) AddWriter(writer io.Writer, format LogFormat) {
	for _, w := range l.writers {
		if w == writer {
			return
		}
	}

	// Unstructured output goes through a console writer without ANSI coloring
	if format == UNSTRUCTURED {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: true}
	}
	l.writers = append(l.writers, writer)
	l.rebuildMultiLogger()
}

// RemoveWriter will remove a writer from the list of writers that the logger manages. If the writer does not exist, this
// function is a no-op
func (l *Logger) RemoveWriter(writer io.Writer) {
	for i, w := range l.writers {
		if w == writer {
			l.writers = append(l.writers[:i], l.writers[i+1:]...)
			l.rebuildMultiLogger()
			return
		}
	}
}

// Level will get the log level of the Logger
func (l *Logger) Level() zerolog.Level {
	return l.level
}

// SetLevel will update the log level of the Logger
func (l *Logger) SetLevel(level zerolog.Level) {
	l.level = level
	l.multiLogger = l.multiLogger.Level(level)
	l.consoleLogger = l.consoleLogger.Level(level)
}

// Trace is a wrapper function that will log a trace event
func (l *Logger) Trace(args ...any) {
	l.emit(l.consoleLogger.Trace(), l.multiLogger.Trace(), args)
}

// Debug is a wrapper function that will log a debug event
func (l *Logger) Debug(args ...any) {
	l.emit(l.consoleLogger.Debug(), l.multiLogger.Debug(), args)
}

// Info is a wrapper function that will log an info event
func (l *Logger) Info(args ...any) {
	l.emit(l.consoleLogger.Info(), l.multiLogger.Info(), args)
}

// Warn is a wrapper function that will log a warning event
func (l *Logger) Warn(args ...any) {
	l.emit(l.consoleLogger.Warn(), l.multiLogger.Warn(), args)
}

// Error is a wrapper function that will log an error event.
func (l *Logger) Error(args ...any) {
	l.emit(l.consoleLogger.Error(), l.multiLogger.Error(), args)
}

// emit chains the error, structured info and messages built from args onto both events and sends them off. Stack
// traces are only attached at debug level and below.
func (l *Logger) emit(consoleLog *zerolog.Event, multiLog *zerolog.Event, args []any) {
	consoleMsg, multiMsg, err, info := buildMsgs(args...)

	// Err is a no-op when err is nil
	consoleLog.Err(err)
	multiLog.Err(err)
	if err != nil && l.level <= zerolog.DebugLevel {
		consoleLog.Stack()
		multiLog.Stack()
	}

	if info != nil {
		consoleLog.Any("info", info)
		multiLog.Any("info", info)
	}

	multiLog.Msg(multiMsg)
	consoleLog.Msg(consoleMsg)
}

// rebuildMultiLogger recreates the multi logger over the current writers and context.
func (l *Logger) rebuildMultiLogger() {
	if len(l.writers) == 0 {
		l.multiLogger = zerolog.New(io.Discard).Level(zerolog.Disabled)
		return
	}
	ctx := zerolog.New(zerolog.MultiLevelWriter(l.writers...)).Level(l.level).With().Timestamp()
	for i := 0; i+1 < len(l.context); i += 2 {
		ctx = ctx.Str(l.context[i], l.context[i+1])
	}
	l.multiLogger = ctx.Logger()
}

// buildMsgs takes a variadic list of arguments of any type and returns a colorized string for console logging, a plain
// string for the other writers, and optionally an error and a StructuredLogInfo. Color functions switch the color of
// the arguments that follow them.
func buildMsgs(args ...any) (string, string, error, StructuredLogInfo) {
	if len(args) == 0 {
		return "", "", nil, nil
	}

	colorCtx := colors.Reset
	consoleOutput := make([]string, 0, len(args))
	fileOutput := make([]string, 0, len(args))
	var info StructuredLogInfo
	var err error

	for _, arg := range args {
		switch t := arg.(type) {
		case colors.ColorFunc:
			colorCtx = t
		case StructuredLogInfo:
			// only one structured log info is kept per message
			info = t
		case error:
			// only one error is kept per message
			err = t
		case *LogBuffer:
			console, file, _, _ := buildMsgs(t.Args()...)
			consoleOutput = append(consoleOutput, console)
			fileOutput = append(fileOutput, file)
		default:
			consoleOutput = append(consoleOutput, colorCtx(t))
			fileOutput = append(fileOutput, fmt.Sprintf("%v", t))
		}
	}

	return strings.Join(consoleOutput, ""), strings.Join(fileOutput, ""), err, info
}

// setupDefaultFormatting updates the console writer's formatting: no timestamps and colored level markers.
func setupDefaultFormatting(writer zerolog.ConsoleWriter, level zerolog.Level) zerolog.ConsoleWriter {
	writer.FormatTimestamp = func(i interface{}) string {
		return ""
	}

	writer.FormatLevel = func(i any) string {
		levelStr, _ := i.(string)
		parsed, err := zerolog.ParseLevel(levelStr)
		if err != nil {
			return levelStr
		}

		switch parsed {
		case zerolog.TraceLevel:
			return colors.CyanBold(zerolog.LevelTraceValue)
		case zerolog.DebugLevel:
			return colors.BlueBold(zerolog.LevelDebugValue)
		case zerolog.InfoLevel:
			return colors.GreenBold(colors.LEFT_ARROW)
		case zerolog.WarnLevel:
			return colors.YellowBold(zerolog.LevelWarnValue)
		case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
			return colors.RedBold(levelStr)
		default:
			return levelStr
		}
	}

	// Above debug level the module field is noise on the console
	if level > zerolog.DebugLevel {
		writer.FieldsExclude = []string{"module"}
	}

	return writer
}
