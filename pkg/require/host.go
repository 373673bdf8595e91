package require

import "strings"

// hostModules are top-level module names shipped by the host runtime's
// interpreter. These are never vendored: they are always importable inside
// the host, and shadowing them under the vendor namespace would break the
// host's own API surface.
var hostModules = map[string]bool{
	// Interpreter standard library (top-level importables).
	"abc": true, "argparse": true, "array": true, "asyncio": true,
	"base64": true, "binascii": true, "bisect": true, "builtins": true,
	"calendar": true, "cmath": true, "codecs": true, "collections": true,
	"concurrent": true, "configparser": true, "contextlib": true,
	"copy": true, "csv": true, "ctypes": true, "dataclasses": true,
	"datetime": true, "decimal": true, "difflib": true, "dis": true,
	"email": true, "enum": true, "errno": true, "fnmatch": true,
	"fractions": true, "functools": true, "gc": true, "getpass": true,
	"gettext": true, "glob": true, "gzip": true, "hashlib": true,
	"heapq": true, "hmac": true, "html": true, "http": true,
	"importlib": true, "inspect": true, "io": true, "ipaddress": true,
	"itertools": true, "json": true, "keyword": true, "linecache": true,
	"locale": true, "logging": true, "lzma": true, "math": true,
	"mimetypes": true, "multiprocessing": true, "numbers": true,
	"operator": true, "os": true, "pathlib": true, "pickle": true,
	"platform": true, "pprint": true, "queue": true, "random": true,
	"re": true, "secrets": true, "select": true, "selectors": true,
	"shlex": true, "shutil": true, "signal": true, "site": true,
	"socket": true, "socketserver": true, "sqlite3": true, "ssl": true,
	"stat": true, "statistics": true, "string": true, "struct": true,
	"subprocess": true, "sys": true, "sysconfig": true, "tempfile": true,
	"textwrap": true, "threading": true, "time": true, "timeit": true,
	"tokenize": true, "traceback": true, "types": true, "typing": true,
	"unicodedata": true, "unittest": true, "urllib": true, "uuid": true,
	"venv": true, "warnings": true, "weakref": true, "xml": true,
	"zipfile": true, "zlib": true, "zoneinfo": true,
}

// IsHostModule reports whether name is a module provided by the host
// runtime itself. The check accepts both raw module names ("importlib")
// and normalized package names.
func IsHostModule(name string) bool {
	if hostModules[strings.ToLower(strings.TrimSpace(name))] {
		return true
	}
	return hostModules[strings.ReplaceAll(NormalizeName(name), "-", "_")]
}
