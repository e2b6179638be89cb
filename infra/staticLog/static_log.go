package staticLog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 全局静态logger, 调用方直接 staticLog.Log.Infof / Warnf
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Log.SetLevel(logrus.InfoLevel)
}

// InitFile 追加滚动文件输出, 长时间bootstrap批跑时用
func InitFile(path string) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    64, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	Log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}
