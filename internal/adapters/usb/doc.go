// Package usb implements the printer device and hot-plug watcher ports
// on top of the Linux usblp character device and fsnotify.
package usb
