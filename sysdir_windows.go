//go:build windows

package main

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/windows"
)

// systemDirectory is where SystemDir mode looks for the original DLL.
func systemDirectory() string {
	dir, err := windows.GetSystemDirectory()
	if err != nil {
		log.Debugf("GetSystemDirectory: %s", err)
		return ""
	}
	return dir
}
