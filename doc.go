/*
Package foreman is the scheduling and data-access core of an Entity-Component-System (ECS) runtime.

Systems declare which resources they read and write, and in which causal role. Foreman derives a
safe, deterministic execution order from those declarations alone; no system names its neighbours.
Alongside the scheduler it provides a borrow-checked resource store, a lazy join over component
presence bitsets, and the archetype storage the join reads from.

Core Concepts:

  - Resource: a singleton value stored once per ResourceID in a World and borrowed through Ref/RefMut.
  - System: a Runnable with a declared Access (reads-before-write, writes, reads-after-write).
  - SystemRegistry: the registered systems and the dependency graph derived from them.
  - Wavefront: systems with no path between them; they may run concurrently.
  - Join: an ascending, single-pass walk over ids present in every joined source.
  - Entity/Component/Archetype: archetype-based component storage backed by tables.

Scheduling:

	counter := foreman.FactoryNewResource[Counter]()

	registry := foreman.NewSystemRegistry(
		foreman.NewSystemInfo("reset", foreman.Access{
			ReadsBeforeWrite: foreman.Resources(counter),
		}, nil),
		foreman.SystemInfoFor[*Increment](foreman.Access{
			Writes: foreman.Resources(counter),
		}),
	)

	visitor, guard, err := registry.Systems()
	if err != nil {
		// *foreman.CycleError names every system on the cycle
	}
	defer guard.Release()
	for wave, info := range visitor.All() {
		fmt.Println(wave, info.Name())
	}

Resources:

	world := foreman.Factory.NewWorld()
	counter.Insert(world, func() Counter { return Counter{} }).Release()

	ref, err := counter.TryFetch(world) // *foreman.FetchError if never inserted
	defer ref.Release()

Joins:

	position := foreman.FactoryNewComponent[Position]()
	velocity := foreman.FactoryNewComponent[Velocity]()

	it := foreman.Join(foreman.And(position.Source(storage), velocity.Source(storage)))
	for id, pair := range it.All() {
		pair.First.X += pair.Second.X
		_ = id
	}

Storage and queries:

	schema := table.Factory.NewSchema()
	storage := foreman.Factory.NewStorage(schema)
	storage.NewEntities(100, position, velocity)

	query := foreman.Factory.NewQuery()
	cursor := foreman.Factory.NewCursor(query.And(position, velocity), storage)
	for cursor.Next() {
		pos := position.GetFromCursor(cursor)
		vel := velocity.GetFromCursor(cursor)
		pos.X += vel.X
	}
*/
package foreman
