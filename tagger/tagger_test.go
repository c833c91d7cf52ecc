package tagger

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testChr1, _   = sam.NewReference("chr1", "", "", 10000, nil, nil)
	testChr2, _   = sam.NewReference("chr2", "", "", 10000, nil, nil)
	testHeader, _ = sam.NewHeader(nil, []*sam.Reference{testChr1, testChr2})
)

func newTestRecord(name string, ref *sam.Reference, pos int) *sam.Record {
	return &sam.Record{
		Name:  name,
		Ref:   ref,
		Pos:   pos,
		MapQ:  60,
		Cigar: sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 4)},
		Seq:   sam.NewSeq([]byte("ACGT")),
		Qual:  []byte{30, 30, 30, 30},
	}
}

func auxString(t *testing.T, r *sam.Record, tag sam.Tag) string {
	aux := r.AuxFields.Get(tag)
	require.NotNil(t, aux, "record %s lacks tag %v", r.Name, tag)
	s, ok := aux.Value().(string)
	require.True(t, ok)
	return s
}

func TestSetAux(t *testing.T) {
	r := newTestRecord("read1", testChr1, 100)
	require.NoError(t, setAux(r, ubTag, "AAAAA"))
	assert.Equal(t, "AAAAA", auxString(t, r, ubTag))

	// Replaces, never duplicates.
	require.NoError(t, setAux(r, ubTag, "CCCCC"))
	assert.Equal(t, 1, len(r.AuxFields))
	assert.Equal(t, "CCCCC", auxString(t, r, ubTag))
}

func TestTagRecord(t *testing.T) {
	results := map[string]TagResult{
		"read1": {UMI: "AAAAA", Gene: "GeneA", Transcript: "ENST0001", Barcode: "ACGT"},
	}

	r := newTestRecord("read1", testChr1, 100)
	row, ok, err := tagRecord(r, results)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, readTagRow{
		ReadID: "read1", Gene: "GeneA", Transcript: "ENST0001",
		Barcode: "ACGT", UMI: "AAAAA",
	}, row)
	assert.Equal(t, "AAAAA", auxString(t, r, ubTag))
	assert.Equal(t, "GeneA", auxString(t, r, gnTag))
	assert.Equal(t, "ENST0001", auxString(t, r, trTag))

	// Unresolved reads are filtered, not errors.
	_, ok, err = tagRecord(newTestRecord("read9", testChr1, 100), results)
	require.NoError(t, err)
	assert.False(t, ok)
}

func writeTestBAM(t *testing.T, path string, records []*sam.Record) {
	f, err := os.Create(path)
	require.NoError(t, err)
	bw, err := bam.NewWriter(f, testHeader, 1)
	require.NoError(t, err)
	for _, r := range records {
		require.NoError(t, bw.Write(r))
	}
	require.NoError(t, bw.Close())
	require.NoError(t, f.Close())
}

func writeTestBAI(t *testing.T, bamPath, baiPath string) {
	f, err := os.Open(bamPath)
	require.NoError(t, err)
	defer f.Close()
	br, err := bam.NewReader(f, 1)
	require.NoError(t, err)
	var idx bam.Index
	for {
		r, err := br.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.NoError(t, idx.Add(r, br.LastChunk()))
	}
	require.NoError(t, br.Close())

	out, err := os.Create(baiPath)
	require.NoError(t, err)
	require.NoError(t, bam.WriteIndex(out, &idx))
	require.NoError(t, out.Close())
}

func readBAM(t *testing.T, path string) []*sam.Record {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	br, err := bam.NewReader(f, 1)
	require.NoError(t, err)
	defer br.Close()
	var records []*sam.Record
	for {
		r, err := br.Read()
		if err == io.EOF {
			return records
		}
		require.NoError(t, err)
		records = append(records, r)
	}
}

// testInputs writes the BAM and annotation tables for the end-to-end cases:
// one group whose AAAAT UMI folds into the dominant AAAAA, one unannotated
// read grouped by region, one read with no annotations at all, and one read
// on another chromosome.
func testInputs(t *testing.T, dir string) Opts {
	bamPath := filepath.Join(dir, "in.bam")
	writeTestBAM(t, bamPath, []*sam.Record{
		newTestRecord("read1", testChr1, 100),
		newTestRecord("read2", testChr1, 150),
		newTestRecord("read3", testChr1, 200),
		newTestRecord("read4", testChr1, 300),
		newTestRecord("read5", testChr1, 400),
		newTestRecord("read6", testChr2, 100),
	})
	writeTestBAI(t, bamPath, bamPath+".bai")

	genePath := writeFile(t, dir, "gene_assigns.tsv",
		"read1\tAssigned\t60\tGeneA\n"+
			"read2\tAssigned\t60\tGeneA\n"+
			"read3\tAssigned\t60\tGeneA\n"+
			"read5\tUnassigned_NoFeatures\t0\tNA\n"+
			"read6\tAssigned\t60\tGeneB\n")
	transcriptPath := writeFile(t, dir, "transcript_assigns.tsv",
		"read_id\tref_id\n"+
			"read1\tENST0001\n"+
			"read2\tENST0001\n"+
			"read3\tENST0001\n")
	barcodePath := writeFile(t, dir, "bc_ur_tags.tsv",
		"read_id\tCB\tUR\tchr\tstart\tend\n"+
			"read1\tACGTACGT\tAAAAA\tchr1\t100\t104\n"+
			"read2\tACGTACGT\tAAAAA\tchr1\t150\t154\n"+
			"read3\tACGTACGT\tAAAAT\tchr1\t200\t204\n"+
			"read5\tACGTACGT\tCCCCC\tchr1\t400\t404\n"+
			"read6\tACGTACGT\tGGGGG\tchr2\t100\t104\n")

	return Opts{
		BamFile:               bamPath,
		OutputPath:            filepath.Join(dir, "tagged.bam"),
		ReadTagsPath:          filepath.Join(dir, "read_tags.tsv"),
		GeneAssignsFile:       genePath,
		TranscriptAssignsFile: transcriptPath,
		BarcodeTagsFile:       barcodePath,
	}
}

func TestRun(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testInputs(t, tempDir)

	stats, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Records)
	assert.Equal(t, 5, stats.Tagged)

	records := readBAM(t, opts.OutputPath)
	require.Equal(t, 5, len(records))

	// read4 had no annotations and is gone.
	names := []string{}
	for _, r := range records {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"read1", "read2", "read3", "read5", "read6"}, names)

	// The error variant folds into the dominant UMI of its group.
	assert.Equal(t, "AAAAA", auxString(t, records[0], ubTag))
	assert.Equal(t, "AAAAA", auxString(t, records[2], ubTag))
	assert.Equal(t, "GeneA", auxString(t, records[2], gnTag))
	assert.Equal(t, "ENST0001", auxString(t, records[2], trTag))

	// Unannotated read keeps its own UMI under a synthesized region gene.
	assert.Equal(t, "CCCCC", auxString(t, records[3], ubTag))
	assert.Equal(t, "chr1_0_1000", auxString(t, records[3], gnTag))
	assert.Equal(t, "-", auxString(t, records[3], trTag))

	tags, err := ioutil.ReadFile(opts.ReadTagsPath)
	require.NoError(t, err)
	assert.Equal(t,
		"read_id\tgene\ttranscript\tbarcode\tumi\n"+
			"read1\tGeneA\tENST0001\tACGTACGT\tAAAAA\n"+
			"read2\tGeneA\tENST0001\tACGTACGT\tAAAAA\n"+
			"read3\tGeneA\tENST0001\tACGTACGT\tAAAAA\n"+
			"read5\tchr1_0_1000\t-\tACGTACGT\tCCCCC\n"+
			"read6\tGeneB\t-\tACGTACGT\tGGGGG\n",
		string(tags))
}

func TestRunChrom(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testInputs(t, tempDir)
	opts.Chrom = "chr2"

	stats, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, stats.Tagged)

	records := readBAM(t, opts.OutputPath)
	require.Equal(t, 1, len(records))
	assert.Equal(t, "read6", records[0].Name)
	assert.Equal(t, "GGGGG", auxString(t, records[0], ubTag))
	assert.Equal(t, "GeneB", auxString(t, records[0], gnTag))
}

func TestRunChromMissing(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testInputs(t, tempDir)
	opts.Chrom = "chrMT"

	_, err := Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestRunGzipReadTags(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	opts := testInputs(t, tempDir)
	opts.ReadTagsPath = filepath.Join(tempDir, "read_tags.tsv.gz")

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	f, err := os.Open(opts.ReadTagsPath)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	content, err := ioutil.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(content), "read1\tGeneA\tENST0001\tACGTACGT\tAAAAA\n")
}
