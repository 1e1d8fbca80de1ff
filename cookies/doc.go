// Package cookies converts between flat cookie records, as served by a cookie
// export endpoint or stored in a cookies.txt file, and the cookie jar the
// dispatch agent attaches to outbound requests.
//
// Every jar built by BuildJar carries exactly one SOCS consent cookie. Cookie
// values are sensitive: log names and counts, never values.
package cookies
