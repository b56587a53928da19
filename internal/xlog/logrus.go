package xlog

import "github.com/sirupsen/logrus"

// Logrus adapts a logrus.FieldLogger (either *logrus.Logger or
// *logrus.Entry) to Logger.
type Logrus struct{ logrus.FieldLogger }

var _ Logger = Logrus{}

func (x Logrus) WithField(key string, value any) Logger {
	return Logrus{FieldLogger: x.FieldLogger.WithField(key, value)}
}

func (x Logrus) WithFields(fields map[string]any) Logger {
	return Logrus{FieldLogger: x.FieldLogger.WithFields(fields)}
}

func (x Logrus) WithError(err error) Logger {
	return Logrus{FieldLogger: x.FieldLogger.WithError(err)}
}
