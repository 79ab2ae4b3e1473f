package tourimport

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/device"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/gateways/collision"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/tourtype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type persistedTour struct {
	id     entities.TourID
	record entities.TourRecord
}

// fileJob is one file moving through the per-file states.
type fileJob struct {
	ctx         context.Context
	state       string
	file        entities.OSFile
	driver      device.Driver
	deviceData  entities.DeviceData
	config      *entities.ImportConfiguration
	destination string
	summary     *entities.RunSummary
	records     map[string]entities.TourRecord
	persisted   []persistedTour
	outcome     entities.FileOutcome
	err         error
	log         *logrus.Entry
}

func (j *fileJob) finish(outcome entities.FileOutcome, err error) {
	j.outcome = outcome
	j.err = err
	j.state = entities.StateDone
}

func (j *fileJob) fail(err error) {
	j.finish(entities.FileOutcomeFor(err), err)
}

type stateHandler interface {
	execute(*fileJob)
	setNext(stateHandler)
}

type baseState struct {
	next stateHandler
	p    *Pipeline
}

func (bs *baseState) execute(job *fileJob) {}

func (bs *baseState) setNext(next stateHandler) {
	bs.next = next
}

type decodingStateHandler struct {
	baseState
}

func (ds *decodingStateHandler) execute(job *fileJob) {
	if job.state != entities.StateDecoding {
		ds.next.execute(job)
		return
	}

	driver := job.driver
	if driver == nil {
		found, ok := ds.p.registry.DriverForFile(job.file.Path)
		if !ok {
			job.fail(errors.Wrapf(entities.ErrRejectedFormat, "no device reads %s", job.file.Name))
			return
		}
		driver = found
	} else if !driver.Reader().Validate(job.file.Path) {
		job.fail(errors.Wrapf(entities.ErrRejectedFormat, "%s rejected by %s", job.file.Name, driver.Descriptor().ID))
		return
	}
	job.driver = driver

	deviceData := job.deviceData
	if deviceData.DeviceID == "" {
		deviceData.DeviceID = driver.Descriptor().ID
	}
	records, err := driver.Reader().Decode(job.file.Path, deviceData)
	if err != nil {
		job.fail(err)
		return
	}
	job.records = records
	job.log.WithField("device", driver.Descriptor().ID).Debugf("decoded %d tours", len(records))
	job.state = entities.StateResolving
}

type resolvingStateHandler struct {
	baseState
}

func (rs *resolvingStateHandler) execute(job *fileJob) {
	if job.state != entities.StateResolving {
		rs.next.execute(job)
		return
	}

	record, err := rs.p.resolver.Resolve(job.file, job.destination, collision.PolicyFor(job.config))
	if err != nil {
		job.fail(err)
		return
	}
	switch record.Action {
	case entities.ActionAccept, entities.ActionInPlace:
	default:
		job.summary.RecordCollision(record)
	}
	if record.Action == entities.ActionSkip {
		job.finish(entities.OutcomeSkippedCollision, nil)
		return
	}

	stored := filepath.Join(job.destination, record.TargetName)
	for key, tour := range job.records {
		tour.SourceFile = stored
		job.records[key] = tour
	}
	job.state = entities.StatePersisting
}

type persistingStateHandler struct {
	baseState
}

func (ps *persistingStateHandler) execute(job *fileJob) {
	if job.state != entities.StatePersisting {
		ps.next.execute(job)
		return
	}

	keys := make([]string, 0, len(job.records))
	for key := range job.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		tour := job.records[key]
		stored, err := ps.alreadyStored(job, tour.DeviceID, key)
		if err == nil && stored {
			continue
		}
		var id entities.TourID
		if err == nil {
			id, err = ps.p.store.Upsert(job.ctx, tour)
		}
		if err != nil {
			// tours stored before the failure stay in the store; count and classify them
			job.summary.PersistedTours += len(job.persisted)
			classifyPersisted(ps.p, job)
			job.finish(entities.OutcomeFailed, err)
			return
		}
		ps.p.filter.add(tour.DeviceID, key)
		job.persisted = append(job.persisted, persistedTour{id: id, record: tour})
	}
	job.summary.PersistedTours += len(job.persisted)
	job.state = entities.StateClassifying
}

// alreadyStored reports whether key is known to the store. A filter miss is
// definite; a filter hit may be a false positive and is checked in the store.
func (ps *persistingStateHandler) alreadyStored(job *fileJob, deviceID, key string) (bool, error) {
	if !ps.p.filter.isDuplicated(deviceID, key) {
		return false, nil
	}
	has, err := ps.p.store.Has(job.ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "look up %s", key)
	}
	return has, nil
}

type classifyingStateHandler struct {
	baseState
}

func (cs *classifyingStateHandler) execute(job *fileJob) {
	if job.state != entities.StateClassifying {
		cs.next.execute(job)
		return
	}

	classifyPersisted(cs.p, job)
	job.finish(entities.OutcomeImported, nil)
}

func classifyPersisted(p *Pipeline, job *fileJob) {
	for _, tour := range job.persisted {
		tourType, ok := tourtype.Classify(tour.record.AverageSpeedKmh(), job.config)
		if !ok {
			continue
		}
		if err := p.store.AssignTourType(job.ctx, tour.id, tourType); err != nil {
			job.log.Warnf("assign tour type to %s: %v", tour.record.Key(), err)
			continue
		}
		job.summary.ClassifiedTours++
	}
}

// unknownStateHandler ends the chain so a job always reaches a final state.
type unknownStateHandler struct {
	baseState
}

func (us *unknownStateHandler) execute(job *fileJob) {
	job.finish(entities.OutcomeFailed, errors.Errorf("no handler for state %q", job.state))
}

func newFileStateChain(p *Pipeline) stateHandler {
	handlers := []stateHandler{
		&decodingStateHandler{baseState{p: p}},
		&resolvingStateHandler{baseState{p: p}},
		&persistingStateHandler{baseState{p: p}},
		&classifyingStateHandler{baseState{p: p}},
		&unknownStateHandler{baseState{p: p}},
	}
	for i := 0; i < len(handlers)-1; i++ {
		handlers[i].setNext(handlers[i+1])
	}
	return handlers[0]
}
