package log

import "github.com/sirupsen/logrus"

// BadgerAdapter implements badger.Logger on top of a logrus Entry so the
// result store's internal logging lands in the application log stream.
type BadgerAdapter struct {
	*logrus.Entry
}

// NewBadgerAdapter creates a new adapter
func NewBadgerAdapter(entry *logrus.Entry) *BadgerAdapter {
	return &BadgerAdapter{entry}
}

func (l *BadgerAdapter) Errorf(f string, v ...interface{})   { l.Entry.Errorf(f, v...) }
func (l *BadgerAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warningf(f, v...) }
func (l *BadgerAdapter) Infof(f string, v ...interface{})    { l.Entry.Infof(f, v...) }
func (l *BadgerAdapter) Debugf(f string, v ...interface{})   { l.Entry.Debugf(f, v...) }
