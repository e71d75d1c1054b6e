package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb/maptile"
	"github.com/teris-io/shortid"
	pb "gopkg.in/cheggaaa/pb.v1"
)

func InitTask() {
	start := time.Now()

	opts := &Options{
		LayerName:      conf.Layer.Name,
		SortByKey:      conf.Layer.SortByKey,
		LimitSizeBytes: conf.Layer.LimitSizeBytes,
	}
	for z := conf.Layer.MinZoom; z <= conf.Layer.MaxZoom; z++ {
		opts.ZoomLevels = append(opts.ZoomLevels, maptile.Zoom(z))
	}

	task, err := NewTask(inputPath, opts)
	if err != nil {
		log.Fatalf("load %s error, details: %s", inputPath, err)
	}
	// register abort for graceful shutdown
	SafeExitInst.Register(task.AbortFun)

	if err := task.Build(); err != nil {
		log.Fatalf("build tiles error, details: %s", err)
	}
	if err := task.Write(conf.Output.File); err != nil {
		log.Fatalf("write %s error, details: %s", conf.Output.File, err)
	}

	secs := time.Since(start).Seconds()
	log.Printf("\n%.3fs finished...", secs)
}

// Task builds the whole tile pyramid for one input file.
type Task struct {
	ID      string
	Options *Options
	Index   *rtreego.Rtree
	Count   int
	BBox    BBox
	Fields  map[string]string
	Tiles   []*tileData
	Failed  []*tileBuildError
	Bar     *pb.ProgressBar

	workerCount int
	bufSize     int
	failFast    bool
	tileWG      sync.WaitGroup
	abort       chan struct{}
	workers     chan struct{}
}

// NewTask loads the input and prepares the shared read-only state every
// worker builds tiles from.
func NewTask(path string, opts *Options) (*Task, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	index, count, bbox, fields, err := loadFeatures(data)
	if err != nil {
		return nil, err
	}
	if bbox.IsEmpty() {
		return nil, errors.New("input has no line-string features, nothing to tile")
	}
	log.Infof("bbox of %d features: lon %.6f..%.6f lat %.6f..%.6f",
		count, bbox.MinLon, bbox.MaxLon, bbox.MinLat, bbox.MaxLat)

	id, _ := shortid.Generate()
	task := &Task{
		ID:      id,
		Options: opts,
		Index:   index,
		Count:   count,
		BBox:    bbox,
		Fields:  fields,
	}

	if conf != nil {
		task.workerCount = conf.Task.Workers
		task.bufSize = conf.Task.BufSize
		task.failFast = conf.Task.FailFast
	}
	if task.workerCount <= 0 {
		task.workerCount = runtime.NumCPU()
	}
	if task.bufSize <= 0 {
		task.bufSize = 64
	}

	task.abort = make(chan struct{}, 1)
	task.workers = make(chan struct{}, task.workerCount)
	return task, nil
}

// AbortFun stops scheduling further tiles.
func (task *Task) AbortFun() {
	select {
	case task.abort <- struct{}{}:
	default:
	}
}

// plan enumerates the tile rectangle covering the bounding box at every
// requested zoom. Some of these tiles will turn out empty and be dropped
// by the builder.
func (task *Task) plan() ([]maptile.Tile, error) {
	var tiles []maptile.Tile
	for _, z := range task.Options.ZoomLevels {
		x1, y1, x2, y2 := task.BBox.ToTiles(z)
		for x := x1; x <= x2; x++ {
			for y := y1; y <= y2; y++ {
				t, err := NewTile(x, y, z)
				if err != nil {
					return nil, err
				}
				tiles = append(tiles, t)
			}
		}
	}
	return tiles, nil
}

type tileResult struct {
	data *tileData
	err  *tileBuildError
}

// Build plans the tile grid and fans the per-tile builds out over the
// worker pool. Failed tiles are collected and reported; they only fail
// the run when failFast is set.
func (task *Task) Build() error {
	tiles, err := task.plan()
	if err != nil {
		return err
	}
	zooms := task.Options.ZoomLevels
	log.Infof("task %s: %d tiles over zooms %d-%d",
		task.ID, len(tiles), zooms[0], zooms[len(zooms)-1])

	task.Bar = pb.New(len(tiles)).Prefix("tiles: ")
	task.Bar.SetRefreshRate(time.Second)
	task.Bar.Start()

	results := make(chan *tileResult, task.bufSize)
	done := make(chan struct{})
	go task.collect(results, done)

scheduling:
	for _, t := range tiles {
		select {
		case task.workers <- struct{}{}:
			task.tileWG.Add(1)
			go task.tileBuilder(t, results)
		case <-task.abort:
			log.Infof("task %s got canceled.", task.ID)
			break scheduling
		}
	}
	task.tileWG.Wait()
	close(results)
	<-done
	task.Bar.FinishPrint(fmt.Sprintf("task %s finished ~", task.ID))

	if len(task.Failed) > 0 {
		for _, fe := range task.Failed {
			log.Errorf("tile build failed ~ %s", fe)
		}
		if task.failFast {
			return task.Failed[0]
		}
		log.Warnf("%d/%d tiles failed, writing partial archive", len(task.Failed), len(tiles))
	}
	return nil
}

// tileBuilder is one worker unit: build a tile, report the result, free
// the worker slot.
func (task *Task) tileBuilder(t maptile.Tile, results chan<- *tileResult) {
	start := time.Now()
	defer func() {
		task.tileWG.Done()
		<-task.workers
	}()

	td, err := makeTile(t, task.Index, task.Options)
	task.Bar.Increment()
	if err != nil {
		var te *tileBuildError
		if !errors.As(err, &te) {
			te = &tileBuildError{Tile: t, Err: err}
		}
		results <- &tileResult{err: te}
		return
	}
	if td == nil {
		log.Debugf("tile(z:%d, x:%d, y:%d) empty, dropped ~", t.Z, t.X, t.Y)
		return
	}
	results <- &tileResult{data: td}

	cost := time.Since(start).Milliseconds()
	note := ""
	if td.truncated {
		note = " (skipping some features after hitting size limit)"
	}
	log.Debugf("tile(z:%d, x:%d, y:%d), %d features, %dms, %.2f kb%s ...",
		t.Z, t.X, t.Y, td.features, cost, float32(len(td.data))/1024.0, note)
}

// collect is the single consumer of worker results; it owns Tiles and
// Failed, so no locking is needed around them.
func (task *Task) collect(results <-chan *tileResult, done chan<- struct{}) {
	for r := range results {
		if r.err != nil {
			task.Failed = append(task.Failed, r.err)
			if task.failFast {
				task.AbortFun()
			}
			continue
		}
		task.Tiles = append(task.Tiles, r.data)
	}
	close(done)
}

// assemble keys every finished tile into the archive, single-threaded,
// after all parallel work is done.
func (task *Task) assemble() (*PMTiles, error) {
	zooms := task.Options.ZoomLevels
	archive := NewPMTiles(task.BBox, uint8(zooms[0]), uint8(zooms[len(zooms)-1]))

	meta, err := layerMetadata(task.Options.LayerName, archive.MinZoom, archive.MaxZoom, task.Fields)
	if err != nil {
		return nil, err
	}
	archive.Metadata = meta

	for _, td := range task.Tiles {
		if err := archive.AddTile(td.tile, td.data); err != nil {
			return nil, err
		}
	}
	return archive, nil
}

// Write assembles the PMTiles archive and writes it out.
func (task *Task) Write(path string) error {
	archive, err := task.assemble()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := archive.WriteTo(f); err != nil {
		return err
	}
	log.Infof("task %s: wrote %d tiles to %s", task.ID, len(task.Tiles), path)
	return nil
}

// layerMetadata renders the archive's vector_layers JSON document: one
// layer with its zoom range and discovered attribute keys.
func layerMetadata(name string, minZoom, maxZoom uint8, fields map[string]string) ([]byte, error) {
	doc := map[string]interface{}{
		"vector_layers": []interface{}{
			map[string]interface{}{
				"id":      name,
				"minzoom": minZoom,
				"maxzoom": maxZoom,
				"fields":  fields,
			},
		},
	}
	return json.Marshal(doc)
}
