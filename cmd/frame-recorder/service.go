// frame-recorder - record camera frames to image files, raw files or data cubes
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/frame-recorder/acquire"
)

const (
	dbusName = "org.cacophony.framerecorder"
	dbusPath = "/org/cacophony/framerecorder"
)

// stopper is the part of the acquisition loop the service controls.
type stopper interface {
	Stop()
	State() acquire.State
	Stats() acquire.Stats
}

type service struct {
	loop stopper
}

func startService(loop stopper) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{loop: loop}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Stop ends the recording after the frame being written, if any.
func (s *service) Stop() *dbus.Error {
	if s.loop.State() == acquire.Stopped {
		return makeDbusError("Stop", errors.New("recording has already finished"))
	}
	s.loop.Stop()
	return nil
}

// Status returns the number of frames written and lost so far.
func (s *service) Status() (int32, int32, *dbus.Error) {
	stats := s.loop.Stats()
	return int32(stats.Processed), int32(stats.Lost), nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}
