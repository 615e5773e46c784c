// Package resolver
// Author: momentics <momentics@gmail.com>
//
// Caching name-to-address resolver. Listen mode validates the first candidate;
// connect mode races non-blocking probe connects across all candidates and
// keeps the first one that becomes connectable.
package resolver
