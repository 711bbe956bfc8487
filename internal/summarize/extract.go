// Package summarize derives compact per-file digests from redacted content
// and enriches them with plain-language summaries from the generation
// collaborator. Digest extraction is pure regex work over source text, keyed
// by language, so any archive content is handled without real parsers.
package summarize

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"codestory/pkg/types"
)

const (
	// Preview windows for oversized files: keep the head and tail, mark
	// the digest truncated.
	previewHeadBytes = 2000
	previewTailBytes = 1000

	maxImports = 10
	maxSymbols = 40
)

// skipDirectories are path segments excluded from digesting.
var skipDirectories = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true,
	".venv": true, "venv": true, "dist": true, "build": true,
	".next": true, ".nuxt": true, "target": true, "bin": true, "obj": true,
	".idea": true, ".vscode": true, "vendor": true, "packages": true,
}

// skipFileSuffixes are generated or binary files excluded from digesting.
var skipFileSuffixes = []string{
	".min.js", ".min.css", ".map", ".lock", ".sum",
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".woff", ".woff2", ".ttf", ".eot",
	".pyc", ".pyo", ".class", ".o", ".so", ".dll", ".exe",
	".zip", ".tar", ".gz", ".pdf", ".DS_Store",
}

// languageByExtension maps source extensions to digest languages.
var languageByExtension = map[string]string{
	".py": "python",
	".js": "javascript", ".jsx": "javascript",
	".ts": "typescript", ".tsx": "typescript",
	".vue": "javascript", ".svelte": "javascript",
	".java": "java", ".kt": "kotlin",
	".go": "go",
	".rb": "ruby", ".php": "php", ".cs": "csharp",
	".cpp": "cpp", ".c": "c", ".h": "c",
	".rs": "rust", ".swift": "swift",
	".json": "config", ".yml": "config", ".yaml": "config",
	".toml": "config", ".ini": "config", ".cfg": "config",
	".xml": "markup", ".html": "markup",
	".css": "style", ".scss": "style", ".less": "style",
	".md": "doc", ".txt": "doc", ".rst": "doc",
}

// ShouldSkip reports whether a file is excluded from digesting: anything
// under a generated/vendored directory, with a binary suffix, or with an
// extension outside the known set.
func ShouldSkip(filePath string) bool {
	for _, part := range strings.Split(filePath, "/") {
		if skipDirectories[part] {
			return true
		}
	}

	name := strings.ToLower(path.Base(filePath))
	for _, suffix := range skipFileSuffixes {
		if strings.HasSuffix(name, strings.ToLower(suffix)) {
			return true
		}
	}

	return DetectLanguage(filePath) == ""
}

// DetectLanguage returns the digest language for a path, or "".
func DetectLanguage(filePath string) string {
	return languageByExtension[strings.ToLower(path.Ext(filePath))]
}

// BuildDigest extracts the structural digest of one redacted file. Content
// that is not valid UTF-8 yields ErrUnsupportedEncoding; callers skip such
// files rather than failing the task.
func BuildDigest(filePath string, content []byte) (*types.Digest, error) {
	if !utf8.Valid(content) || strings.ContainsRune(string(content[:min(len(content), 8000)]), 0) {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedEncoding, filePath)
	}

	text := string(content)
	digest := &types.Digest{
		Path:      filePath,
		Language:  DetectLanguage(filePath),
		LineCount: strings.Count(text, "\n") + 1,
		ByteLen:   len(content),
	}

	switch digest.Language {
	case "python":
		extractPython(digest, text)
	case "javascript", "typescript":
		extractJavaScript(digest, text)
	case "java", "kotlin":
		extractJava(digest, text)
	case "go":
		extractGo(digest, text)
	default:
		digest.Comment = leadingComment(text)
	}

	digest.Preview, digest.Truncated = buildPreview(text)
	clampDigest(digest)
	return digest, nil
}

var (
	pyClassRe    = regexp.MustCompile(`(?m)^class\s+(\w+)`)
	pyFuncRe     = regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)`) // indented defs are class methods
	pyImportRe   = regexp.MustCompile(`(?m)^(?:from\s+(\S+)\s+)?import\s+(.+)$`)
	pyDocRe      = regexp.MustCompile(`(?s)"""(.*?)"""`)
	jsClassRe    = regexp.MustCompile(`(?:export\s+)?class\s+(\w+)`)
	jsFuncRe     = regexp.MustCompile(`(?:export\s+)?(?:async\s+)?function\s+(\w+)`)
	jsArrowRe    = regexp.MustCompile(`(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?\(`)
	jsImportRe   = regexp.MustCompile(`import\s+.*?from\s+['"](.+?)['"]`)
	javaClassRe  = regexp.MustCompile(`(?:public|private|protected)?\s*class\s+(\w+)`)
	javaIfaceRe  = regexp.MustCompile(`interface\s+(\w+)`)
	javaMethodRe = regexp.MustCompile(`(?:public|private|protected)\s+[\w<>\[\]]+\s+(\w+)\s*\(`)
	javaImportRe = regexp.MustCompile(`import\s+([\w.]+);`)
	goFuncRe     = regexp.MustCompile(`(?m)^func\s+(?:\([^)]+\)\s*)?(\w+)`)
	goTypeRe     = regexp.MustCompile(`(?m)^type\s+(\w+)`)
	goImportOne  = regexp.MustCompile(`(?m)^import\s+(?:\w+\s+)?"([^"]+)"`)
	goImportBlk  = regexp.MustCompile(`(?s)import\s+\(([^)]*)\)`)
	goQuotedRe   = regexp.MustCompile(`"([^"]+)"`)
)

func extractPython(d *types.Digest, text string) {
	d.Symbols = append(captureAll(pyClassRe, text), captureAll(pyFuncRe, text)...)
	for _, m := range pyImportRe.FindAllStringSubmatch(text, maxImports) {
		if m[1] != "" {
			d.Imports = append(d.Imports, m[1])
		} else {
			d.Imports = append(d.Imports, strings.TrimSpace(m[2]))
		}
	}
	if m := pyDocRe.FindStringSubmatch(text); m != nil {
		d.Comment = firstChars(strings.TrimSpace(m[1]), 200)
	}
}

func extractJavaScript(d *types.Digest, text string) {
	d.Symbols = append(captureAll(jsClassRe, text),
		append(captureAll(jsFuncRe, text), captureAll(jsArrowRe, text)...)...)
	d.Imports = captureN(jsImportRe, text, maxImports)
	d.Comment = leadingComment(text)
}

func extractJava(d *types.Digest, text string) {
	d.Symbols = append(captureAll(javaClassRe, text),
		append(captureAll(javaIfaceRe, text), captureAll(javaMethodRe, text)...)...)
	d.Imports = captureN(javaImportRe, text, maxImports)
	d.Comment = leadingComment(text)
}

func extractGo(d *types.Digest, text string) {
	d.Symbols = append(captureAll(goTypeRe, text), captureAll(goFuncRe, text)...)
	if m := goImportBlk.FindStringSubmatch(text); m != nil {
		d.Imports = captureN(goQuotedRe, m[1], maxImports)
	} else {
		d.Imports = captureN(goImportOne, text, maxImports)
	}
	d.Comment = leadingComment(text)
}

// leadingComment captures the comment block at the top of a file.
func leadingComment(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" && len(lines) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(trimmed, "//"):
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(trimmed, "//")))
		case strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "#!"):
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
		case strings.HasPrefix(trimmed, "/*"), strings.HasPrefix(trimmed, "*"):
			cleaned := strings.Trim(trimmed, "/* ")
			if cleaned != "" {
				lines = append(lines, cleaned)
			}
		default:
			return firstChars(strings.Join(lines, " "), 200)
		}
		if len(lines) >= 8 {
			break
		}
	}
	return firstChars(strings.Join(lines, " "), 200)
}

// buildPreview returns the content excerpt stored on the digest. Oversized
// files keep a head window and a tail window with the middle dropped. Cut
// points back off to rune boundaries so the preview stays valid UTF-8.
func buildPreview(text string) (string, bool) {
	if len(text) <= previewHeadBytes+previewTailBytes {
		return text, false
	}
	head := text[:runeBoundaryBefore(text, previewHeadBytes)]
	tail := text[runeBoundaryAfter(text, len(text)-previewTailBytes):]
	return head + "\n...\n" + tail, true
}

func clampDigest(d *types.Digest) {
	if len(d.Symbols) > maxSymbols {
		d.Symbols = d.Symbols[:maxSymbols]
	}
	if len(d.Imports) > maxImports {
		d.Imports = d.Imports[:maxImports]
	}
}

func captureAll(re *regexp.Regexp, text string) []string {
	return captureN(re, text, -1)
}

func captureN(re *regexp.Regexp, text string, n int) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, n) {
		out = append(out, m[1])
	}
	return out
}

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:runeBoundaryBefore(s, n)]
}

// runeBoundaryBefore returns the largest index <= n that starts a rune.
func runeBoundaryBefore(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// runeBoundaryAfter returns the smallest index >= n that starts a rune.
func runeBoundaryAfter(s string, n int) int {
	for n < len(s) && !utf8.RuneStart(s[n]) {
		n++
	}
	return n
}
