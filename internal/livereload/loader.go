package livereload

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/afero"

	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

// LoaderID is the id of the script element the loader adds. A bundle that
// already mentions it is left alone.
const LoaderID = "nbuild-livereload"

const loaderTemplate = `(function (d) {
  if (!d || d.getElementById(%q)) return;
  var s = d.createElement("script");
  s.async = true;
  s.id = %q;
  s.src = %s;
  (d.head || d.documentElement).appendChild(s);
})(self.document);
`

// Loader returns a snippet that adds the client script served on host:port
// to the page. An unspecified host falls back to the page's own hostname.
func Loader(host string, port int) string {
	p := strconv.Itoa(port)
	var src string
	switch host {
	case "", "0.0.0.0", "::":
		src = fmt.Sprintf(`"http://" + (self.location.hostname || "localhost") + %q`, ":"+p+ScriptPath)
	default:
		src = strconv.Quote("http://" + net.JoinHostPort(host, p) + ScriptPath)
	}
	return fmt.Sprintf(loaderTemplate, LoaderID, LoaderID, src)
}

var sourceMapComment = []byte("\n//# sourceMappingURL=")

// Inject adds loader to a bundle. It goes in front of a trailing
// sourceMappingURL comment so mapped line numbers do not move. The second
// result is false when the bundle already carries the loader.
func Inject(src []byte, loader string) ([]byte, bool) {
	if bytes.Contains(src, []byte(LoaderID)) {
		return src, false
	}

	out := make([]byte, 0, len(src)+len(loader)+1)
	if i := bytes.LastIndex(src, sourceMapComment); i >= 0 && isLastLine(src[i+1:]) {
		out = append(out, src[:i+1]...)
		out = append(out, loader...)
		out = append(out, src[i+1:]...)
		return out, true
	}

	out = append(out, src...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, loader...)
	return out, true
}

func isLastLine(b []byte) bool {
	return !bytes.Contains(bytes.TrimSuffix(b, []byte("\n")), []byte("\n"))
}

// InjectFile adds loader to the file at path, keeping its mode.
func InjectFile(fs afero.Fs, path, loader string) (bool, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return false, nberrors.WrapIO(err, nberrors.ErrCodeLiveReload, "cannot stat bundle").WithFile(path)
	}
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return false, nberrors.WrapIO(err, nberrors.ErrCodeLiveReload, "cannot read bundle").WithFile(path)
	}

	out, changed := Inject(src, loader)
	if !changed {
		return false, nil
	}
	if err := afero.WriteFile(fs, path, out, info.Mode()&os.ModePerm); err != nil {
		return false, nberrors.WrapIO(err, nberrors.ErrCodeLiveReload, "cannot write bundle").WithFile(path)
	}
	return true, nil
}
