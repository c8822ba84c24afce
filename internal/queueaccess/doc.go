// Package queueaccess lets CLI commands run the same queue, sync, auth and
// network operations whether or not a daemon answers on the socket.
package queueaccess
