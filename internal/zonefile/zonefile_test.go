package zonefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleZone = `$ORIGIN example.com.
$TTL 3600
example.com.  3600  IN  SOA  ns1.example.com. hostmaster.example.com. 1 3600 900 1209600 3600
example.com.  3600  IN  NS   ns1.example.com.
ns1.example.com. 3600 IN A   192.0.2.1
www.example.com. 3600 IN A  192.0.2.2
`

func TestReadFile_ParsesRRsets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zone.txt")
	require.NoError(t, os.WriteFile(path, []byte(simpleZone), 0o644))

	z, err := ReadFile(path, "example.com.")
	require.NoError(t, err)

	soa := z.SOA()
	require.NotNil(t, soa)
	assert.EqualValues(t, 1, soa.Serial)

	owners := z.SortedOwners()
	assert.Equal(t, []string{"example.com.", "ns1.example.com.", "www.example.com."}, owners)

	nsRRset := z.RRsets("example.com.")[dns.TypeNS]
	require.NotNil(t, nsRRset)
	assert.Len(t, nsRRset.RRs, 1)
}

func TestReadFile_FollowsIncludeWithinDepth(t *testing.T) {
	dir := t.TempDir()
	childPath := filepath.Join(dir, "child.txt")
	require.NoError(t, os.WriteFile(childPath, []byte("www.example.com. 3600 IN A 192.0.2.2\n"), 0o644))

	parent := "$ORIGIN example.com.\n$TTL 3600\n" +
		"example.com.  3600  IN  SOA  ns1.example.com. hostmaster.example.com. 1 3600 900 1209600 3600\n" +
		"example.com.  3600  IN  NS   ns1.example.com.\n" +
		"ns1.example.com. 3600 IN A   192.0.2.1\n" +
		"$INCLUDE child.txt\n"
	parentPath := filepath.Join(dir, "parent.txt")
	require.NoError(t, os.WriteFile(parentPath, []byte(parent), 0o644))

	z, err := ReadFile(parentPath, "example.com.")
	require.NoError(t, err)
	assert.NotNil(t, z.RRsets("www.example.com.")[dns.TypeA])
}

func TestReadFile_RejectsIncludeBeyondMaxDepth(t *testing.T) {
	dir := t.TempDir()
	// Build a chain of MaxIncludeDepth+2 files, each including the next.
	names := make([]string, MaxIncludeDepth+2)
	for i := range names {
		names[i] = filepath.Join(dir, "z"+string(rune('a'+i))+".txt")
	}
	last := len(names) - 1
	require.NoError(t, os.WriteFile(names[last], []byte("www.example.com. 3600 IN A 192.0.2.2\n"), 0o644))
	for i := last - 1; i >= 0; i-- {
		content := "$INCLUDE " + filepath.Base(names[i+1]) + "\n"
		require.NoError(t, os.WriteFile(names[i], []byte(content), 0o644))
	}

	_, err := readWithIncludes(names[0], 0)
	assert.Error(t, err)
}

func TestWriteFile_CanonicalOrderAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(inPath, []byte(simpleZone), 0o644))

	z, err := ReadFile(inPath, "example.com.")
	require.NoError(t, err)

	outPath := filepath.Join(dir, "out.txt")
	require.NoError(t, WriteFile(z, outPath))

	z2, err := ReadFile(outPath, "example.com.")
	require.NoError(t, err)
	assert.Equal(t, z.SortedOwners(), z2.SortedOwners())
	assert.NotNil(t, z2.RRsets("www.example.com.")[dns.TypeA])

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	text := string(data)
	soaIdx := indexOf(text, "SOA")
	nsIdx := indexOf(text, "\tNS\t")
	require.NotEqual(t, -1, soaIdx)
	require.NotEqual(t, -1, nsIdx)
	assert.Less(t, soaIdx, nsIdx, "SOA must be written before other apex records")
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestAddRR_RoutesRRSIGToCoveredRRset(t *testing.T) {
	z := NewZone("example.com.")
	a := testutilA(t, "www.example.com.", "192.0.2.1")
	z.AddRR(a)

	sig := &dns.RRSIG{
		Hdr:         dns.RR_Header{Name: "www.example.com.", Rrtype: dns.TypeRRSIG},
		TypeCovered: dns.TypeA,
	}
	z.AddRR(sig)

	rrset := z.RRset("www.example.com.", dns.TypeA)
	assert.Len(t, rrset.RRs, 1)
	assert.Len(t, rrset.RRSIGs, 1)
}

func testutilA(t *testing.T, name, ip string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(name + " 3600 IN A " + ip)
	require.NoError(t, err)
	return rr
}
