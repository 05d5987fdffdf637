package deb

// arMember names a file member inside the outer ar(1) container of a .deb.
//
// Reference: https://manpages.debian.org/unstable/dpkg-dev/deb.5.en.html#FORMAT
type arMember string

const (
	memberDebianBinary arMember = "debian-binary"
	memberControlTar   arMember = "control.tar"
	memberDataTar      arMember = "data.tar"
)

// controlFile names a file inside control.tar(.gz) of a .deb.
const controlFileName = "control"

// HashAlgorithm identifies one of the digest algorithms the repository
// records alongside each indexed file.
//
// Reference: spec.md §3 "one hash per configured algorithm".
type HashAlgorithm string

const (
	MD5    HashAlgorithm = "MD5Sum"
	SHA1   HashAlgorithm = "SHA1"
	SHA256 HashAlgorithm = "SHA256"
)

// DefaultHashAlgorithms is the set of algorithms recorded by default,
// matching spec.md §4.2/§4.6 ("MD5Sum, SHA1, SHA256").
var DefaultHashAlgorithms = []HashAlgorithm{MD5, SHA1, SHA256}
