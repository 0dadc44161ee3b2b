package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// plainErrorCore 将 error 类型字段改写为纯字符串。
//
// cockroachdb/errors 实现了 fmt.Formatter，zap 默认会额外输出一段带堆栈的
// errorVerbose 字段；聊天服务的错误大多是可预期的用户错误，不需要堆栈。
type plainErrorCore struct {
	zapcore.Core
}

func newPlainErrorCore(core zapcore.Core) zapcore.Core {
	return &plainErrorCore{Core: core}
}

func (c *plainErrorCore) With(fields []zapcore.Field) zapcore.Core {
	return &plainErrorCore{Core: c.Core.With(plainErrorFields(fields))}
}

func (c *plainErrorCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *plainErrorCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, plainErrorFields(fields))
}

func plainErrorFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if f.Type != zapcore.ErrorType {
			if out != nil {
				out = append(out, f)
			}
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, i, len(fields))
			copy(out, fields[:i])
		}
		err, _ := f.Interface.(error)
		if err == nil {
			out = append(out, zap.Skip())
			continue
		}
		out = append(out, zap.String(f.Key, err.Error()))
	}
	if out == nil {
		return fields
	}
	return out
}
