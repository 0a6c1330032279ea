package otelx

import "os"

// lookupEnv is a seam for tests that need to fake environment lookups.
var lookupEnv = os.LookupEnv
