/*
Package server accepts the connections of editor clients and runs the session protocol on each of them.

A client first binds its connection to a session with `sessid <id>`. Every connection bound to the same id shares one
store, and so one kernel: reconnecting with the id of an existing session reattaches to its cached history.

Commands are single lines, and the ones carrying an expression announce its size in bytes, eg. `execute 4` followed
by the 4 bytes of the expression, so expressions may span several lines. Replies are single lines starting with `okay`
or `exception`, except html output, which is sent as `inline <n>` followed by n bytes.

The server runs until Shutdown is called or the host process that launched it goes away. Sessions are not interrupted:
they finish their current command, and then all stores are closed.

The server doesn't try to protect itself from malicious users, a session id is all it takes to join a session.
*/
package server
