package watermark

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestOutputPath(t *testing.T) {
	cases := []struct {
		name        string
		input       string
		inRoot      string
		outRoot     string
		want        string
		expectError bool
	}{
		{name: "flat", input: "input_images/a.png", inRoot: "input_images", outRoot: "output_images", want: "output_images/a.png"},
		{name: "nested", input: "input_images/x/y/b.jpg", inRoot: "input_images", outRoot: "output_images", want: "output_images/x/y/b.jpg"},
		{name: "trailing slash root", input: "input_images/a.png", inRoot: "input_images/", outRoot: "out", want: "out/a.png"},
		{name: "absolute input relative root", input: "/data/input_images/a.png", inRoot: "input_images", outRoot: "output_images", want: "/data/output_images/a.png"},
		{name: "dot-dot prefixed dir", input: "input_images/./..foo/a.png", inRoot: "input_images", outRoot: "output_images", want: "output_images/..foo/a.png"},
		{name: "dot-dot prefixed file", input: "input_images/..a.png", inRoot: "input_images", outRoot: "output_images", want: "output_images/..a.png"},
		{name: "outside root", input: "other/a.png", inRoot: "input_images", outRoot: "output_images", expectError: true},
		{name: "empty root", input: "a.png", inRoot: "", outRoot: "output_images", expectError: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := OutputPath(tc.input, tc.inRoot, tc.outRoot)
			if tc.expectError {
				test.That(t, err, test.ShouldNotBeNil)
				return
			}
			test.That(t, err, test.ShouldBeNil)
			test.That(t, got, test.ShouldEqual, filepath.FromSlash(tc.want))
		})
	}
}

func TestListImages(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", "sub/c.webp", "sub/d.gif", "sub/deeper/e.tiff"} {
		p := filepath.Join(root, filepath.FromSlash(name))
		test.That(t, os.MkdirAll(filepath.Dir(p), 0o755), test.ShouldBeNil)
		test.That(t, os.WriteFile(p, []byte("x"), 0o644), test.ShouldBeNil)
	}

	got, err := ListImages(root)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, []string{
		filepath.Join(root, "a.JPG"),
		filepath.Join(root, "b.png"),
		filepath.Join(root, "sub", "c.webp"),
		filepath.Join(root, "sub", "d.gif"),
		filepath.Join(root, "sub", "deeper", "e.tiff"),
	})

	_, err = ListImages(filepath.Join(root, "missing"))
	test.That(t, err, test.ShouldNotBeNil)
}
