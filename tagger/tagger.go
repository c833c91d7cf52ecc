package tagger

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

var (
	ubTag = sam.Tag{'U', 'B'} // corrected UMI
	gnTag = sam.Tag{'G', 'N'} // gene label
	trTag = sam.Tag{'T', 'R'} // transcript label
)

// Stats summarizes one tagging pass.
type Stats struct {
	// Records is the number of alignment records scanned.
	Records int
	// Tagged is the number of records that received tags and were emitted.
	Tagged int
}

// readTagRow is one row of the read-tag TSV side output. Rows appear in the
// same order as the emitted alignment records.
type readTagRow struct {
	ReadID     string `tsv:"read_id"`
	Gene       string `tsv:"gene"`
	Transcript string `tsv:"transcript"`
	Barcode    string `tsv:"barcode"`
	UMI        string `tsv:"umi"`
}

// setAux replaces any existing instance of tag on r with a string value.
func setAux(r *sam.Record, tag sam.Tag, value string) error {
	for i, aux := range r.AuxFields {
		if aux.Tag() == tag {
			r.AuxFields = append(r.AuxFields[:i], r.AuxFields[i+1:]...)
			break
		}
	}
	aux, err := sam.NewAux(tag, value)
	if err != nil {
		return err
	}
	r.AuxFields = append(r.AuxFields, aux)
	return nil
}

// tagRecord attaches the UB/GN/TR tags to one alignment record. The second
// return is false when the read has no resolved correction; such records
// are silently excluded from the output rather than reported, since reads
// can legitimately miss resolution (capped groups, unjoinable annotations).
func tagRecord(r *sam.Record, results map[string]TagResult) (readTagRow, bool, error) {
	result, ok := results[r.Name]
	if !ok || result.UMI == "" || result.Gene == "" {
		return readTagRow{}, false, nil
	}
	if err := setAux(r, ubTag, result.UMI); err != nil {
		return readTagRow{}, false, err
	}
	if err := setAux(r, gnTag, result.Gene); err != nil {
		return readTagRow{}, false, err
	}
	if err := setAux(r, trTag, result.Transcript); err != nil {
		return readTagRow{}, false, err
	}
	return readTagRow{
		ReadID:     r.Name,
		Gene:       result.Gene,
		Transcript: result.Transcript,
		Barcode:    result.Barcode,
		UMI:        result.UMI,
	}, true, nil
}

// tagAlignments streams the input BAM (one chromosome when opts.Chrom is
// set, otherwise the whole file), re-emits every record whose read id has a
// resolved correction with UB/GN/TR tags attached, and writes the read-tag
// TSV side output.
func tagAlignments(ctx context.Context, opts Opts, results map[string]TagResult) (Stats, error) {
	var stats Stats

	in, err := file.Open(ctx, opts.BamFile)
	if err != nil {
		return stats, err
	}
	defer in.Close(ctx) // nolint: errcheck
	br, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return stats, errors.Wrapf(err, "opening %s", opts.BamFile)
	}
	defer br.Close() // nolint: errcheck

	out, err := file.Create(ctx, opts.OutputPath)
	if err != nil {
		return stats, err
	}
	bw, err := bam.NewWriter(out.Writer(ctx), br.Header(), 1)
	if err != nil {
		return stats, errors.Wrapf(err, "creating %s", opts.OutputPath)
	}

	tagsOut, err := file.Create(ctx, opts.ReadTagsPath)
	if err != nil {
		return stats, err
	}
	var tagsWriter io.Writer = tagsOut.Writer(ctx)
	var gz *gzip.Writer
	if strings.HasSuffix(opts.ReadTagsPath, ".gz") {
		gz = gzip.NewWriter(tagsWriter)
		tagsWriter = gz
	}
	rows := tsv.NewRowWriter(tagsWriter)

	emit := func(r *sam.Record) error {
		stats.Records++
		row, ok, err := tagRecord(r, results)
		if err != nil || !ok {
			return err
		}
		if err := bw.Write(r); err != nil {
			return err
		}
		if err := rows.Write(&row); err != nil {
			return err
		}
		stats.Tagged++
		return nil
	}

	if opts.Chrom == "" {
		err = scanAll(br, emit)
	} else {
		err = scanChrom(ctx, br, opts, emit)
	}
	if err != nil {
		return stats, err
	}

	if err := rows.Flush(); err != nil {
		return stats, err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return stats, err
		}
	}
	if err := tagsOut.Close(ctx); err != nil {
		return stats, err
	}
	if err := bw.Close(); err != nil {
		return stats, err
	}
	if err := out.Close(ctx); err != nil {
		return stats, err
	}
	log.Debug.Printf("tagged %d of %d records", stats.Tagged, stats.Records)
	return stats, nil
}

func scanAll(br *bam.Reader, emit func(*sam.Record) error) error {
	for {
		r, err := br.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := emit(r); err != nil {
			return err
		}
	}
}

// scanChrom fetches a single chromosome through the BAM index, the same
// access pattern samtools uses for a region fetch.
func scanChrom(ctx context.Context, br *bam.Reader, opts Opts, emit func(*sam.Record) error) error {
	var ref *sam.Reference
	for _, r := range br.Header().Refs() {
		if r.Name() == opts.Chrom {
			ref = r
			break
		}
	}
	if ref == nil {
		return fmt.Errorf("chromosome %q not in %s header", opts.Chrom, opts.BamFile)
	}

	idxIn, err := file.Open(ctx, opts.IndexFile)
	if err != nil {
		return err
	}
	defer idxIn.Close(ctx) // nolint: errcheck
	idx, err := bam.ReadIndex(idxIn.Reader(ctx))
	if err != nil {
		return errors.Wrapf(err, "reading index %s", opts.IndexFile)
	}

	chunks, err := idx.Chunks(ref, 0, ref.Len())
	if err != nil {
		return errors.Wrapf(err, "no index coverage for %s", opts.Chrom)
	}
	it, err := bam.NewIterator(br, chunks)
	if err != nil {
		return err
	}
	for it.Next() {
		if err := emit(it.Record()); err != nil {
			it.Close() // nolint: errcheck
			return err
		}
	}
	return it.Close()
}
