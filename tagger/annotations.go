package tagger

import (
	"context"
	"io"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/pkg/errors"
)

// noTranscript is the sentinel attached to reads with no transcript
// assignment.
const noTranscript = "-"

// noGene is the sentinel the upstream gene assigner emits for reads it
// could not place in an annotated gene.
const noGene = "NA"

// ReadAnnotation is the joined per-read annotation consumed by the
// pipeline: gene (resolved, possibly a synthesized region label),
// transcript, corrected cell barcode, raw UMI, and the alignment
// coordinates the region fallback was derived from.
type ReadAnnotation struct {
	ReadID     string
	Gene       string
	Transcript string
	Barcode    string
	RawUMI     string
	Chrom      string
	Start      int
	End        int
}

// geneAssignRow is one row of the gene assignment table. The table has no
// header row; columns are positional. Only the gene label is consumed, but
// the assignment status and mapping quality are part of the format.
type geneAssignRow struct {
	ReadID string `tsv:"read_id"`
	Status string `tsv:"status"`
	MapQ   int    `tsv:"mapq"`
	Gene   string `tsv:"gene"`
}

// transcriptRow is one row of the transcript assignment table.
type transcriptRow struct {
	ReadID string `tsv:"read_id"`
	RefID  string `tsv:"ref_id"`
}

// barcodeRow is one row of the barcode/UMI tag table: the corrected cell
// barcode (CB), the uncorrected UMI (UR), and the read's alignment span.
type barcodeRow struct {
	ReadID  string `tsv:"read_id"`
	Barcode string `tsv:"CB"`
	RawUMI  string `tsv:"UR"`
	Chrom   string `tsv:"chr"`
	Start   int    `tsv:"start"`
	End     int    `tsv:"end"`
}

func readTranscriptAssigns(r io.Reader) (map[string]string, error) {
	reader := tsv.NewReader(r)
	reader.HasHeaderRow = true
	reader.UseHeaderNames = true

	transcripts := map[string]string{}
	for {
		var row transcriptRow
		if err := reader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		transcripts[row.ReadID] = row.RefID
	}
	return transcripts, nil
}

func readBarcodeTags(r io.Reader) (map[string]barcodeRow, error) {
	reader := tsv.NewReader(r)
	reader.HasHeaderRow = true
	reader.UseHeaderNames = true

	barcodes := map[string]barcodeRow{}
	for {
		var row barcodeRow
		if err := reader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		barcodes[row.ReadID] = row
	}
	return barcodes, nil
}

// loadAnnotations joins the three per-read tables by read_id, in gene-table
// row order. A read missing from the barcode table is skipped; a read with
// no transcript row gets the "-" sentinel. Gene labels are resolved here:
// the "NA" sentinel is replaced by a region label synthesized from the
// read's alignment midpoint, so unannotated reads still cluster by coarse
// genomic locality. Empty tables yield empty results, not errors.
func loadAnnotations(ctx context.Context, opts Opts) ([]ReadAnnotation, error) {
	transcripts := map[string]string{}
	if opts.TranscriptAssignsFile != "" {
		f, err := file.Open(ctx, opts.TranscriptAssignsFile)
		if err != nil {
			return nil, err
		}
		transcripts, err = readTranscriptAssigns(f.Reader(ctx))
		if e := f.Close(ctx); err == nil {
			err = e
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading transcript assignments %s", opts.TranscriptAssignsFile)
		}
	}

	f, err := file.Open(ctx, opts.BarcodeTagsFile)
	if err != nil {
		return nil, err
	}
	barcodes, err := readBarcodeTags(f.Reader(ctx))
	if e := f.Close(ctx); err == nil {
		err = e
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading barcode tags %s", opts.BarcodeTagsFile)
	}

	f, err = file.Open(ctx, opts.GeneAssignsFile)
	if err != nil {
		return nil, err
	}
	annotations, err := joinAnnotations(f.Reader(ctx), transcripts, barcodes, opts.RefInterval)
	if e := f.Close(ctx); err == nil {
		err = e
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading gene assignments %s", opts.GeneAssignsFile)
	}
	log.Debug.Printf("loaded %d annotated reads (%d barcode rows, %d transcript rows)",
		len(annotations), len(barcodes), len(transcripts))
	return annotations, nil
}

func joinAnnotations(r io.Reader, transcripts map[string]string,
	barcodes map[string]barcodeRow, refInterval int) ([]ReadAnnotation, error) {
	reader := tsv.NewReader(r)

	var annotations []ReadAnnotation
	for {
		var row geneAssignRow
		if err := reader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		bc, ok := barcodes[row.ReadID]
		if !ok {
			continue
		}
		transcript, ok := transcripts[row.ReadID]
		if !ok {
			transcript = noTranscript
		}
		gene := row.Gene
		if gene == noGene {
			gene = regionName(bc.Chrom, bc.Start, bc.End, refInterval)
		}
		annotations = append(annotations, ReadAnnotation{
			ReadID:     row.ReadID,
			Gene:       gene,
			Transcript: transcript,
			Barcode:    bc.Barcode,
			RawUMI:     bc.RawUMI,
			Chrom:      bc.Chrom,
			Start:      bc.Start,
			End:        bc.End,
		})
	}
	return annotations, nil
}
