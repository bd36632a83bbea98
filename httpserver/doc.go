/*
Package httpserver serves private values into third-party pages.

Every value is delivered in two requests so that a page which merely embeds
the daemon cannot read or write data on its own:

 1. GET /data/{path} is the unsecure phase. It may be requested by any page.
    It mints a session, sets the "sid" cookie (HttpOnly, SameSite=None,
    Path=/data) and renders a page embedding an iframe that points at the
    secure URL, which carries a fresh token.
 2. GET /data/{path}/{token} and POST /data/{token} are the secure phase. A
    request is served only when the cookie and the token name the same live
    session, and only for the path the session was minted for.

Secure GET renders the resolved value, or an input for it when edit=true.
Absent values render as the "no data" state of the requested type. Secure
POST stores the submitted value, optionally notifies relay_url, and renders
the persisted value.

# Query parameters

  - data_type: bool, u64, i64, f64, string or media
  - edit: render an input instead of the value
  - css: stylesheet URL for the secure page
  - relay_url: URL notified after a successful write
  - js_message, js_height_msg_prefix: base64 strings posted to the parent
    window

# Errors

Errors are JSON {"code": <status>, "message": <text>}. Denied sessions get
401 UNAUTHORIZED without the value ever being resolved. Decryption failures
are reported as an opaque 500 and cycles or overly deep chains as
500 DATA RESOLUTION FAILED.

# Other routes

POST /proxy fetches a URL for a page on the same registrable domain as the
request Origin. /healthz, /livez, /readyz, /drain and /undrain manage the
server lifecycle and /debug serves pprof when enabled.
*/
package httpserver
