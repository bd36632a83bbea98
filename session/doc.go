/*
Package session mints and checks the short-lived tokens that gate access to
the secure routes.

An unsecure request calls Manager.BeginSession, which stores a Session Record
binding a random session id (delivered as a cookie) and a random token
(embedded in the secure URL) to the requested data path. A secure request
presents both and calls Manager.Authorize; it is authorized only when the
stored record exists, has not expired and carries the same token.

Two stores are provided:

  - MemoryStore keeps records in process with a ttl and is the default.
  - RedisStore keeps records in Redis under SET ... EX, so several daemons
    can share sessions.

Neither store is ever asked to compare tokens; the comparison happens in the
Manager in constant time.
*/
package session
