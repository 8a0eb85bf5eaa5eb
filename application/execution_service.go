package application

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/XXueTu/site_orchestrator/domain/agent"
	"github.com/XXueTu/site_orchestrator/domain/logger"
	"github.com/XXueTu/site_orchestrator/domain/plan"
)

// internalStep 执行非智能体步骤，返回完成的步骤数
type internalStep func(ctx context.Context, step plan.Step) (int, *OrchestrationError)

// execution 运行中的工作流
type execution struct {
	o          *Orchestrator
	id         string
	rootID     string
	sites      []agent.Site
	results    []map[agent.Dimension]*agent.Result
	failures   []map[agent.Dimension]*OrchestrationError
	collapsed  [][]plan.Stage
	internal   map[plan.StepType]internalStep
	invocation atomic.Int64
}

func (o *Orchestrator) newExecution(id, rootID string, sites []agent.Site) *execution {
	e := &execution{
		o:         o,
		id:        id,
		rootID:    rootID,
		sites:     sites,
		results:   make([]map[agent.Dimension]*agent.Result, len(sites)),
		failures:  make([]map[agent.Dimension]*OrchestrationError, len(sites)),
		collapsed: make([][]plan.Stage, len(sites)),
		internal:  make(map[plan.StepType]internalStep),
	}
	for i := range sites {
		e.results[i] = make(map[agent.Dimension]*agent.Result)
		e.failures[i] = make(map[agent.Dimension]*OrchestrationError)
	}
	return e
}

// handle 注册非智能体步骤类型的执行器
func (e *execution) handle(t plan.StepType, fn internalStep) {
	e.internal[t] = fn
}

// task 作用于单个站点的智能体步骤
type task struct {
	step plan.Step
	site int
}

type taskOutcome struct {
	result *agent.Result
	err    *OrchestrationError
}

// run 按顺序执行各阶段。并行阶段等待所有分支完成后
// 才进入下一阶段。按计划顺序第一个失败的必需步骤
// 终止执行。
func (e *execution) run(ctx context.Context, stages []plan.Stage) *OrchestrationError {
	for _, stage := range stages {
		var tasks []task
		for _, step := range stage.Steps {
			if step.Type != plan.StepAgent {
				if err := e.runInternal(ctx, step); err != nil {
					return err
				}
				continue
			}
			if step.PerSite {
				for i := range e.sites {
					tasks = append(tasks, task{step: step, site: i})
				}
			} else {
				tasks = append(tasks, task{step: step, site: 0})
			}
		}
		if len(tasks) == 0 {
			continue
		}

		outcomes := make([]taskOutcome, len(tasks))
		if stage.Mode == plan.ModeParallel && len(tasks) > 1 {
			// 分支启动前获取上游结果快照
			upstream := e.upstreamViews()
			var wg sync.WaitGroup
			for i, t := range tasks {
				wg.Add(1)
				go func(i int, t task) {
					defer wg.Done()
					res, err := e.o.runAgentStep(ctx, e, t, upstream[t.site])
					outcomes[i] = taskOutcome{result: res, err: err}
				}(i, t)
			}
			wg.Wait()
		} else {
			for i, t := range tasks {
				res, err := e.o.runAgentStep(ctx, e, t, e.upstreamView(t.site))
				outcomes[i] = taskOutcome{result: res, err: err}
			}
		}

		if stage.Mode == plan.ModeParallel {
			e.markCollapsed(stage, tasks, outcomes)
		}
		if err := e.collect(tasks, outcomes); err != nil {
			return err
		}
	}
	return nil
}

// collect 汇合后保存分支结果
func (e *execution) collect(tasks []task, outcomes []taskOutcome) *OrchestrationError {
	var abort *OrchestrationError
	completed := 0
	for i, t := range tasks {
		out := outcomes[i]
		if out.err == nil {
			e.results[t.site][t.step.Dimension] = out.result
			completed++
			continue
		}
		e.failures[t.site][t.step.Dimension] = out.err
		if t.step.Required && abort == nil {
			abort = out.err
		}
	}
	e.o.advance(e.id, completed)
	return abort
}

// markCollapsed 按站点记录两个及以上分支全部失败的屏障
func (e *execution) markCollapsed(stage plan.Stage, tasks []task, outcomes []taskOutcome) {
	branches := make(map[int]int)
	succeeded := make(map[int]int)
	for i, t := range tasks {
		branches[t.site]++
		if outcomes[i].err == nil {
			succeeded[t.site]++
		}
	}
	for site, n := range branches {
		if n > 1 && succeeded[site] == 0 {
			e.collapsed[site] = append(e.collapsed[site], stage)
		}
	}
}

// collapsedDimensions 站点失败屏障涉及的维度
func (e *execution) collapsedDimensions(site int) []agent.Dimension {
	var dims []agent.Dimension
	for _, stage := range e.collapsed[site] {
		for _, step := range stage.Steps {
			if step.Type == plan.StepAgent {
				dims = append(dims, step.Dimension)
			}
		}
	}
	return dims
}

func (e *execution) runInternal(ctx context.Context, step plan.Step) *OrchestrationError {
	fn, ok := e.internal[step.Type]
	if !ok {
		err := NewOrchestrationErrorf(KindPlanConstructionError, nil, "no executor for %s steps", step.Type)
		err.Step = step.Name
		return err
	}
	completed, err := fn(logger.WithStep(ctx, step.Name), step)
	e.o.advance(e.id, completed)
	if err != nil && err.Step == "" {
		err.Step = step.Name
	}
	return err
}

// upstreamView 站点当前结果的副本
func (e *execution) upstreamView(site int) map[agent.Dimension]*agent.Result {
	view := make(map[agent.Dimension]*agent.Result, len(e.results[site]))
	for d, r := range e.results[site] {
		view[d] = r
	}
	return view
}

func (e *execution) upstreamViews() []map[agent.Dimension]*agent.Result {
	views := make([]map[agent.Dimension]*agent.Result, len(e.sites))
	for i := range e.sites {
		views[i] = e.upstreamView(i)
	}
	return views
}

// succeeded 维度d有结果的站点，按请求顺序
func (e *execution) succeeded(d agent.Dimension) []int {
	var idx []int
	for i := range e.sites {
		if _, ok := e.results[i][d]; ok {
			idx = append(idx, i)
		}
	}
	return idx
}
