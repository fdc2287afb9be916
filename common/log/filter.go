package log

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// logFilter drops console output below the module level while still feeding
// every entry to the file writer, if one is set.
type logFilter struct {
	lock         sync.RWMutex
	formatter    logrus.Formatter
	defaultLevel Level
	moduleLevels map[string]Level

	fileWriter io.Writer
}

func newLogFilter(formatter logrus.Formatter) *logFilter {
	return &logFilter{
		formatter:    formatter,
		defaultLevel: TraceLevel,
		moduleLevels: make(map[string]Level, 6),
	}
}

func (f *logFilter) levelFor(e *logrus.Entry) Level {
	f.lock.RLock()
	defer f.lock.RUnlock()

	var module string
	if value, ok := e.Data[FieldKeyModule]; !ok {
		if e.HasCaller() {
			module = getPackageName(e.Caller.Function)
		}
	} else if s, ok := value.(string); ok {
		module = s
	}
	if len(module) > 0 {
		if lv, ok := f.moduleLevels[module]; ok {
			return lv
		}
	}
	return f.defaultLevel
}

func (f *logFilter) Format(e *logrus.Entry) ([]byte, error) {
	level := f.levelFor(e)

	f.lock.RLock()
	fw := f.fileWriter
	f.lock.RUnlock()

	if e.Level > logrus.Level(level) && fw == nil {
		return nil, nil
	}
	buf, err := f.formatter.Format(e)
	if fw != nil && len(buf) > 0 {
		_, _ = fw.Write(buf)
	}
	if e.Level > logrus.Level(level) {
		return nil, nil
	}
	return buf, err
}

func (f *logFilter) SetModuleLevel(module string, level Level) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.moduleLevels[module] = level
}

func (f *logFilter) GetModuleLevel(module string) Level {
	f.lock.RLock()
	defer f.lock.RUnlock()
	if lv, ok := f.moduleLevels[module]; ok {
		return lv
	}
	return f.defaultLevel
}

func (f *logFilter) SetDefaultLevel(level Level) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.defaultLevel = level
}

func (f *logFilter) SetFileWriter(writer io.Writer) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.fileWriter = writer
}
