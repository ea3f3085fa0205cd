package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("---\ntitle: a\n---\n"))
	b := Sum([]byte("---\ntitle: a\n---\n"))
	if a != b || len(a) != 64 {
		t.Errorf("sum = %q / %q", a, b)
	}
	if Sum([]byte("x")) == a {
		t.Error("different input produced same sum")
	}
}

func TestETag(t *testing.T) {
	if got := ETag("abc"); got != `"abc"` {
		t.Errorf("etag = %s", got)
	}
}
